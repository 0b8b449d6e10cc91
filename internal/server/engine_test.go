package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eternalApril/lettuce/internal/config"
	"github.com/eternalApril/lettuce/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEngine(t *testing.T, cfg *config.Config, opts ...Option) (*Engine, storage.Storage) {
	t.Helper()

	s, err := storage.NewShardedMapStorage(4)
	require.NoError(t, err)

	e, err := NewEngine(s, cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)

	return e, s
}

func TestDispatch(t *testing.T) {
	e := setupEngine()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"Set", "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n", "+OK\r\n"},
		{"Get", "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n", "$3\r\nbar\r\n"},
		{"Del", "*2\r\n$3\r\nDEL\r\n$3\r\nfoo\r\n", ":1\r\n"},
		{"Get missing", "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n", "$-1\r\n"},
		{"Inline", "PING\r\n", "+PONG\r\n"},
		{"Lowercase verb", "*1\r\n$4\r\nping\r\n", "+PONG\r\n"},
		{"Empty", "", "-ERR empty command\r\n"},
		{"Truncated frame", "*2\r\n$3\r\nGET\r\n", "-ERR wrong number of arguments for 'get' command\r\n"},
		{"Unknown", "*1\r\n$5\r\nHELLO\r\n", "-ERR Unknown command 'HELLO'\r\n"},
		{"Empty list", "LGET nothing", "*0\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(e.Dispatch([]byte(tt.raw))))
		})
	}
}

func TestDispatch_ProtocolError(t *testing.T) {
	e := setupEngine()

	got := string(e.Dispatch([]byte("*x\r\n")))
	assert.True(t, strings.HasPrefix(got, "-ERR Protocol error: "), got)
	assert.True(t, strings.HasSuffix(got, "\r\n"))

	got = string(e.Dispatch([]byte("*2\r\n$3\r\nGET\r\n$zz\r\n")))
	assert.True(t, strings.HasPrefix(got, "-ERR Protocol error: "), got)
}

func TestDispatch_HashReply(t *testing.T) {
	e := setupEngine()
	e.Dispatch([]byte("HSET h f v"))

	assert.Equal(t, "*2\r\n$1\r\nf\r\n$1\r\nv\r\n", string(e.Dispatch([]byte("HGETALL h"))))
	assert.Equal(t, "+hash\r\n", string(e.Dispatch([]byte("TYPE h"))))
}

func TestEngine_AOFReplay(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Persistence: config.PersistenceConfig{
			AOF: config.AOFConfig{
				Enabled:  true,
				Filename: filepath.Join(dir, "appendonly.aof"),
				Fsync:    "always",
			},
		},
	}

	first, _ := newEngine(t, cfg)
	run(first, "SET foo bar")
	run(first, "SET temp x")
	run(first, "DEL temp")
	run(first, "RPUSH list a b c")
	run(first, "LPOP list")
	run(first, "HMSET user name bob age 7")
	run(first, "HSET foo f v") // WRONGTYPE, not logged
	run(first, "GET foo")      // read, not logged
	first.Shutdown()

	data, err := os.ReadFile(cfg.Persistence.AOF.Filename)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "HSET")
	assert.NotContains(t, string(data), "GET")

	second, s := newEngine(t, cfg)

	assert.Equal(t, "bar", string(run(second, "GET foo").String))
	assert.Equal(t, "none", string(run(second, "TYPE temp").String))
	assert.Equal(t, []string{"b", "c"}, s.LRange("list", 0, -1))
	assert.Equal(t, map[string]string{"name": "bob", "age": "7"}, s.HGetAll("user"))

	// replayed commands are not appended a second time
	second.Shutdown()
	after, err := os.ReadFile(cfg.Persistence.AOF.Filename)
	require.NoError(t, err)
	assert.Equal(t, data, after)
}

func TestEngine_SnapshotLifecycle(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Persistence: config.PersistenceConfig{
			Snapshot: config.SnapshotConfig{
				Enabled:  true,
				Filename: filepath.Join(dir, "dump.my_rdb"),
			},
		},
	}

	// no file yet: starts empty
	first, s := newEngine(t, cfg)
	assert.Equal(t, 0, s.Len())

	run(first, "SET foo bar")
	run(first, "RPUSH list a b")
	run(first, "HSET user name bob")
	run(first, "SET session s EX 100")
	assert.Equal(t, "OK", string(run(first, "SAVE").String))

	second, s2 := newEngine(t, cfg)
	assert.Equal(t, 4, s2.Len())
	assert.Equal(t, "bar", string(run(second, "GET foo").String))
	assert.InDelta(t, 100, run(second, "TTL session").Integer, 2)

	// shutdown writes a final snapshot
	run(first, "SET late yes")
	first.Shutdown()

	third, _ := newEngine(t, cfg)
	assert.Equal(t, "yes", string(run(third, "GET late").String))
}

func TestEngine_BackgroundSave(t *testing.T) {
	cfg := &config.Config{
		Persistence: config.PersistenceConfig{
			Snapshot: config.SnapshotConfig{
				Enabled:  true,
				Filename: filepath.Join(t.TempDir(), "dump.my_rdb"),
			},
		},
	}

	e, _ := newEngine(t, cfg)
	run(e, "SET foo bar")

	assert.Equal(t, "Background saving started", string(run(e, "BGSAVE").String))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(cfg.Persistence.Snapshot.Filename)
		return err == nil && string(data) == "K foo bar\n"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_CorruptSnapshotStartsEmpty(t *testing.T) {
	file := filepath.Join(t.TempDir(), "dump.my_rdb")
	require.NoError(t, os.WriteFile(file, []byte("garbage\n"), 0o644))

	cfg := &config.Config{
		Persistence: config.PersistenceConfig{
			Snapshot: config.SnapshotConfig{Enabled: true, Filename: file},
		},
	}

	_, s := newEngine(t, cfg)
	assert.Equal(t, 0, s.Len())
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	e, _ := newEngine(t, &config.Config{}, WithMetrics(m))

	run(e, "SET foo bar")
	run(e, "GET foo")
	run(e, "GET foo")
	run(e, "GET")
	run(e, "BOGUS")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cmdCount.WithLabelValues("SET", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cmdCount.WithLabelValues("GET", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cmdCount.WithLabelValues("GET", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cmdCount.WithLabelValues("unknown", "error")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.cmdDuration), "one series per command label")

	_, err = NewMetrics(reg)
	assert.Error(t, err, "collectors are registered once per registry")
}

// countingStorage records how often active expiration runs
type countingStorage struct {
	storage.Storage
	gcRuns atomic.Int64
}

func (c *countingStorage) DeleteExpired(limit int) float64 {
	c.gcRuns.Add(1)
	return c.Storage.DeleteExpired(limit)
}

func TestEngine_RunBackgroundJobs(t *testing.T) {
	file := filepath.Join(t.TempDir(), "dump.my_rdb")
	cfg := &config.Config{
		GC: config.GCConfig{
			Enabled:         true,
			Interval:        5 * time.Millisecond,
			SamplesPerCheck: 20,
			MatchThreshold:  0.25,
		},
		Persistence: config.PersistenceConfig{
			Snapshot: config.SnapshotConfig{
				Enabled:  true,
				Filename: file,
				Interval: 20 * time.Millisecond,
			},
		},
	}

	s := &countingStorage{Storage: storage.NewMapStorage()}
	e, err := NewEngine(s, cfg, zap.NewNop())
	require.NoError(t, err)
	defer e.Shutdown()

	run(e, "SET foo bar")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, statErr := os.Stat(file)
		return statErr == nil && s.gcRuns.Load() > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
