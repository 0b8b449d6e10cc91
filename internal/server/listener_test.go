package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eternalApril/lettuce/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	addr    string
	server  *Server
	metrics *Metrics
	cancel  context.CancelFunc
	done    chan error
}

// startServer serves a fresh engine on a random local port until the test ends
func startServer(t *testing.T, cfg config.ServerConfig) *testServer {
	t.Helper()

	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	e, _ := newEngine(t, &config.Config{Server: cfg}, WithMetrics(m))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		addr:    ln.Addr().String(),
		server:  NewServer(e, cfg, m, zap.NewNop()),
		metrics: m,
		cancel:  cancel,
		done:    make(chan error, 1),
	}

	go func() { ts.done <- ts.server.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		<-ts.done
	})
	return ts
}

func (ts *testServer) client(t *testing.T) *redis.Client {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: ts.addr,
	})
	t.Cleanup(func() { rdb.Close() }) //nolint:errcheck
	return rdb
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck

	return conn, bufio.NewReader(conn)
}

func TestServer_Commands(t *testing.T) {
	ts := startServer(t, config.ServerConfig{ReadBuffer: 1024})
	rdb := ts.client(t)
	ctx := context.Background()

	pong, err := rdb.Ping(ctx).Result()
	require.NoError(t, err)
	assert.Equal(t, "PONG", pong)

	require.NoError(t, rdb.Set(ctx, "foo", "bar", 0).Err())
	val, err := rdb.Get(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, "bar", val)

	deleted, err := rdb.Del(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = rdb.Get(ctx, "foo").Result()
	assert.ErrorIs(t, err, redis.Nil)

	require.NoError(t, rdb.RPush(ctx, "list", "a", "b", "c").Err())
	items, err := rdb.Do(ctx, "LGET", "list").StringSlice()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, items)

	require.NoError(t, rdb.HSet(ctx, "user", "name", "bob").Err())
	hash, err := rdb.HGetAll(ctx, "user").Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "bob"}, hash)

	kind, err := rdb.Type(ctx, "user").Result()
	require.NoError(t, err)
	assert.Equal(t, "hash", kind)

	require.NoError(t, rdb.Set(ctx, "temp", "x", time.Minute).Err())
	ttl, err := rdb.TTL(ctx, "temp").Result()
	require.NoError(t, err)
	assert.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 1)

	err = rdb.Do(ctx, "HELLOWORLD").Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown command")

	err = rdb.LPush(ctx, "foo2", "x").Err()
	require.NoError(t, err)
	err = rdb.HSet(ctx, "foo2", "f", "v").Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WRONGTYPE")

	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.cmdCount.WithLabelValues("PING", "ok")))
}

func TestServer_Pipelining(t *testing.T) {
	ts := startServer(t, config.ServerConfig{ReadBuffer: 1024})
	rdb := ts.client(t)
	ctx := context.Background()

	count := 10_000
	pipe := rdb.Pipeline()

	for i := 0; i < count; i++ {
		key := fmt.Sprintf("pipe_key_%d", i)
		val := fmt.Sprintf("val_%d", i)
		pipe.Set(ctx, key, val, 0)
	}

	getResults := make([]*redis.StringCmd, count)
	for i := 0; i < count; i++ {
		key := fmt.Sprintf("pipe_key_%d", i)
		getResults[i] = pipe.Get(ctx, key)
	}

	_, err := pipe.Exec(ctx)
	require.NoError(t, err, "Pipeline execution failed")

	for i := 0; i < count; i++ {
		expected := fmt.Sprintf("val_%d", i)
		val, err := getResults[i].Result()

		assert.NoError(t, err)
		assert.Equal(t, expected, val, "Key %d mismatch", i)
	}

	size, err := rdb.DBSize(ctx).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(count), size)
}

func TestServer_InlineAndProtocolError(t *testing.T) {
	ts := startServer(t, config.ServerConfig{ReadBuffer: 1024})
	conn, rd := dial(t, ts.addr)

	_, err := conn.Write([]byte("PING\r\nECHO hi\r\n"))
	require.NoError(t, err)

	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "+PONG\r\n", line)

	line, err = rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "$2\r\n", line)
	line, err = rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hi\r\n", line)

	_, err = conn.Write([]byte("*1\r\n$x\r\n"))
	require.NoError(t, err)

	line, err = rd.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "-ERR Protocol error")

	// the server hangs up after a framing error
	_, err = rd.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)
}

func TestServer_ReadBufferLimit(t *testing.T) {
	ts := startServer(t, config.ServerConfig{ReadBuffer: 16})
	conn, rd := dial(t, ts.addr)

	_, err := conn.Write([]byte("ECHO " + string(make([]byte, 64)) + "\r\n"))
	require.NoError(t, err)

	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "-ERR Protocol error")
}

func TestServer_MaxClients(t *testing.T) {
	ts := startServer(t, config.ServerConfig{ReadBuffer: 1024, MaxClients: 1})

	first, firstRd := dial(t, ts.addr)
	_, err := first.Write([]byte("PING\r\n"))
	require.NoError(t, err)
	line, err := firstRd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "+PONG\r\n", line)

	// the second client waits in the backlog while the slot is taken
	second, secondRd := dial(t, ts.addr)
	_, err = second.Write([]byte("PING\r\n"))
	require.NoError(t, err)

	require.NoError(t, second.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err = secondRd.ReadString('\n')
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())

	require.NoError(t, first.Close())

	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err = secondRd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "+PONG\r\n", line)
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	ts := startServer(t, config.ServerConfig{ReadBuffer: 1024, ShutdownTimeout: time.Second})
	conn, rd := dial(t, ts.addr)

	_, err := conn.Write([]byte("PING\r\n"))
	require.NoError(t, err)
	_, err = rd.ReadString('\n')
	require.NoError(t, err)

	require.Eventually(t, func() bool { return ts.server.ActiveConnections() == 1 }, time.Second, 5*time.Millisecond)

	ts.cancel()

	select {
	case err := <-ts.done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	ts.done <- nil // let the cleanup observe completion

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = rd.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, ts.server.ActiveConnections())

	_, err = net.DialTimeout("tcp", ts.addr, 200*time.Millisecond)
	assert.Error(t, err, "listener must be closed")
}

// failingListener fails every Accept until it is closed, like a process out of file descriptors
type failingListener struct {
	accepts atomic.Int32
	closed  chan struct{}
	once    sync.Once
}

func (l *failingListener) Accept() (net.Conn, error) {
	l.accepts.Add(1)
	select {
	case <-l.closed:
		return nil, net.ErrClosed
	default:
		return nil, errors.New("accept: too many open files")
	}
}

func (l *failingListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *failingListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestServer_AcceptErrorBackoff(t *testing.T) {
	e, _ := newEngine(t, &config.Config{})
	s := NewServer(e, config.ServerConfig{ReadBuffer: 1024}, nil, zap.NewNop())
	ln := &failingListener{closed: make(chan struct{})}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after the context expired")
	}

	// 5ms, 10ms, 20ms, 40ms, 80ms fit in the window, a tight loop would make thousands of calls
	assert.LessOrEqual(t, ln.accepts.Load(), int32(10))
	assert.GreaterOrEqual(t, ln.accepts.Load(), int32(2))
}
