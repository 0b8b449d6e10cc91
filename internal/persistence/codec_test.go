package persistence

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/eternalApril/lettuce/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRecords_Format(t *testing.T) {
	deadline := time.UnixMilli(4102444800000) // 2100-01-01

	records := []storage.Record{
		{Key: "user", Entity: *storage.NewHashEntity(map[string]string{"name": "bob", "age": "7"})},
		{Key: "list", Entity: *storage.NewListEntity([]string{"a", "b", "c"})},
		{Key: "foo", Entity: *storage.NewStringEntity("bar"), ExpireAt: deadline},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, records))

	want := "K foo bar\n" +
		"X foo 4102444800000\n" +
		"L list a b c\n" +
		"H user age:7 name:bob\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteRecords_Escaping(t *testing.T) {
	records := []storage.Record{
		{Key: "my key", Entity: *storage.NewStringEntity("a:b%c\nd")},
		{Key: "h", Entity: *storage.NewHashEntity(map[string]string{"f:1": "v 1"})},
		{Key: "empty", Entity: *storage.NewStringEntity("")},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, records))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3, "escaped newlines must not split records")
	assert.Equal(t, "K empty ", lines[0])
	assert.Equal(t, "H h f%3A1:v+1", lines[1])
	assert.Equal(t, "K my+key a%3Ab%25c%0Ad", lines[2])

	got, err := ReadRecords(&buf, time.Now())
	require.NoError(t, err)
	assert.ElementsMatch(t, records, got)
}

func TestReadRecords(t *testing.T) {
	now := time.UnixMilli(1_000_000)

	input := "K foo bar\n" +
		"\n" +
		"L list a b\r\n" +
		"H user name:bob\n" +
		"X user 2000000\n" +
		"K gone x\n" +
		"X gone 500000\n" +
		"K foo baz"

	got, err := ReadRecords(strings.NewReader(input), now)
	require.NoError(t, err)

	want := []storage.Record{
		{Key: "foo", Entity: *storage.NewStringEntity("baz")},
		{Key: "list", Entity: *storage.NewListEntity([]string{"a", "b"})},
		{Key: "user", Entity: *storage.NewHashEntity(map[string]string{"name": "bob"}), ExpireAt: time.UnixMilli(2_000_000)},
	}
	assert.Equal(t, want, got)
}

func TestReadRecords_Corrupt(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  string
	}{
		{"Unknown tag", "Z foo bar\n", "line 1"},
		{"Missing key", "K foo bar\nK\n", "line 2"},
		{"String arity", "K foo bar baz\n", "line 1"},
		{"Empty list", "L foo\n", "line 1"},
		{"Hash without separator", "H foo field\n", "line 1"},
		{"Bad escape", "K foo %zz\n", "line 1"},
		{"Expiry before key", "X foo 1\nK foo bar\n", "line 1"},
		{"Bad timestamp", "K foo bar\nX foo soon\n", "line 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRecords(strings.NewReader(tt.input), time.Now())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorrupt))
			assert.Contains(t, err.Error(), tt.line)
		})
	}
}

func FuzzRecordsRoundTrip(f *testing.F) {
	f.Add("key", "value", "field", "item")
	f.Add("", "", "", "")
	f.Add("a b", "c:d", "e%f", "g\nh")

	f.Fuzz(func(t *testing.T, key, value, field, item string) {
		records := []storage.Record{
			{Key: "s" + key, Entity: *storage.NewStringEntity(value)},
			{Key: "l" + key, Entity: *storage.NewListEntity([]string{item, value})},
			{Key: "h" + key, Entity: *storage.NewHashEntity(map[string]string{field: value})},
		}

		var buf bytes.Buffer
		if err := WriteRecords(&buf, records); err != nil {
			t.Fatal(err)
		}

		got, err := ReadRecords(&buf, time.Now())
		if err != nil {
			t.Fatalf("round trip failed: %v", err)
		}
		assert.ElementsMatch(t, records, got)
	})
}
