package resp_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternalApril/lettuce/internal/resp"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"Empty buffer", "", []string{}},
		{"Framed", "*2\r\n$4\r\nPING\r\n$4\r\nTEST\r\n", []string{"PING", "TEST"}},
		{"Framed binary payload", "*2\r\n$4\r\nECHO\r\n$7\r\nhi\r\nyou\r\n", []string{"ECHO", "hi\r\nyou"}},
		{"Framed empty bulk", "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$0\r\n\r\n", []string{"SET", "k", ""}},
		{"Inline", "PING TEST", []string{"PING", "TEST"}},
		{"Inline extra whitespace", "  SET   k\tv \r\n", []string{"SET", "k", "v"}},
		{"Missing array CRLF", "*2", []string{}},
		{"Truncated payload", "*2\r\n$3\r\nGET\r\n$10\r\nabc", []string{"GET"}},
		{"Missing element", "*3\r\n$3\r\nGET\r\n$1\r\nk\r\n", []string{"GET", "k"}},
		{"Element without marker", "*2\r\n$3\r\nGET\r\n:1\r\n", []string{"GET"}},
		{"Null bulk stops", "*2\r\n$3\r\nGET\r\n$-1\r\n", []string{"GET"}},
		{"Negative count", "*-1\r\n", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resp.ParseCommand([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_NonNumericLength(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"Array length", "*x\r\n$4\r\nPING\r\n", "array length"},
		{"Bulk length", "*1\r\n$four\r\nPING\r\n", "bulk length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resp.ParseCommand([]byte(tt.input))
			assert.Nil(t, got)
			require.Error(t, err)
			assert.ErrorIs(t, err, resp.ErrProtocol)

			var perr *resp.ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.field, perr.Field)
		})
	}
}

func FuzzParseCommand(f *testing.F) {
	f.Add([]byte("*2\r\n$4\r\nPING\r\n$4\r\nTEST\r\n"))
	f.Add([]byte("SET a b"))
	f.Add([]byte("*1\r\n$99\r\n"))

	f.Fuzz(func(t *testing.T, buf []byte) {
		// must never panic, whatever the framing
		resp.ParseCommand(buf) //nolint:errcheck
	})
}

func FuzzParseCommand_RoundTrip(f *testing.F) {
	f.Add("SET", "key", "value")
	f.Add("ECHO", "with space", "\r\n")

	f.Fuzz(func(t *testing.T, name, a, b string) {
		payload, err := resp.SerializeCommand(name, []string{a, b})
		if err != nil {
			t.Fatal(err)
		}

		got, err := resp.ParseCommand(payload)
		if err != nil {
			t.Fatalf("ParseCommand(%q) failed: %v", payload, err)
		}
		if len(got) != 3 || got[0] != name || got[1] != a || got[2] != b {
			t.Errorf("round trip mismatch: got %q", got)
		}
	})
}
