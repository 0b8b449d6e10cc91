package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/eternalApril/lettuce/internal/config"
	"github.com/eternalApril/lettuce/internal/resp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Accept retry delays after a failed Accept, doubled on each consecutive failure
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server accepts client connections and serves each of them in its own goroutine
type Server struct {
	engine  *Engine
	cfg     config.ServerConfig
	metrics *Metrics
	logger  *zap.Logger

	sem *semaphore.Weighted // caps open connections, nil when unbounded

	mu    sync.Mutex
	peers map[*Peer]struct{}
	wg    sync.WaitGroup
}

// NewServer creates a Server executing commands on engine. metrics may be nil
func NewServer(engine *Engine, cfg config.ServerConfig, metrics *Metrics, logger *zap.Logger) *Server {
	s := &Server{
		engine:  engine,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		peers:   make(map[*Peer]struct{}),
	}
	if cfg.MaxClients > 0 {
		s.sem = semaphore.NewWeighted(cfg.MaxClients)
	}
	return s
}

// Serve accepts connections on ln until ctx is done.
// On return the listener and every open connection are closed
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close() //nolint:errcheck
	})
	defer stop()

	s.logger.Info("listening on", zap.String("address", ln.Addr().String()))

	var acceptDelay time.Duration
	for {
		if s.sem != nil {
			// wait for a free slot, the pending connection stays in the accept backlog
			if err := s.sem.Acquire(ctx, 1); err != nil {
				break
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			s.release()
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				break
			}

			if acceptDelay == 0 {
				acceptDelay = minAcceptDelay
			} else {
				acceptDelay = min(acceptDelay*2, maxAcceptDelay)
			}
			s.logger.Error("Accept error", zap.Error(err), zap.Duration("retry_in", acceptDelay))

			select {
			case <-ctx.Done():
			case <-time.After(acceptDelay):
			}
			continue
		}
		acceptDelay = 0

		peer := NewPeer(conn, s.cfg.ReadBuffer)
		s.track(peer)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			defer s.untrack(peer)

			s.handle(peer)
		}()
	}

	ln.Close() //nolint:errcheck
	s.closePeers()
	s.drain()
	return nil
}

// ActiveConnections returns the number of currently served clients
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// handle serves a single client until it disconnects or the connection fails
func (s *Server) handle(peer *Peer) {
	log := s.logger.With(zap.String("conn", peer.ID()))

	if log.Core().Enabled(zap.DebugLevel) {
		log.Debug("client connected", zap.String("addr", peer.RemoteAddr()))
	}

	defer func() {
		peer.Close() //nolint:errcheck
		// log connection close
		if log.Core().Enabled(zap.DebugLevel) {
			log.Debug("client disconnected", zap.String("addr", peer.RemoteAddr()))
		}
	}()

	for {
		args, err := peer.ReadCommand()
		if err != nil {
			if isProtocolError(err) {
				log.Warn("protocol error", zap.Error(err))
				peer.Send(resp.MakeError("ERR Protocol error: " + err.Error())) //nolint:errcheck
				peer.Flush()                                                    //nolint:errcheck
			} else if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn("read command failed", zap.Error(err))
			}
			return
		}

		if len(args) == 0 {
			continue
		}

		result := s.engine.Execute(args[0], args[1:])

		if err = peer.Send(result); err != nil {
			log.Error("error writing response", zap.Error(err))
			return
		}

		// reply to a pipeline in one write once its input is consumed
		if peer.InputBuffered() == 0 {
			if err := peer.Flush(); err != nil {
				return
			}
		}
	}
}

func isProtocolError(err error) bool {
	return errors.Is(err, resp.ErrProtocol) ||
		errors.Is(err, resp.ErrInvalidEnding) ||
		errors.Is(err, resp.ErrLimitExceeded)
}

func (s *Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

func (s *Server) track(p *Peer) {
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()
	s.metrics.clientConnected()
}

func (s *Server) untrack(p *Peer) {
	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
	s.metrics.clientDisconnected()
}

// closePeers closes every open connection, a command already running still completes
func (s *Server) closePeers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for p := range s.peers {
		p.Close() //nolint:errcheck
	}
}

// drain waits for connection goroutines, at most for the shutdown timeout
func (s *Server) drain() {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All connections closed gracefully")
	case <-time.After(timeout):
		s.logger.Warn("Shutdown timed out, abandoning connections", zap.Duration("timeout", timeout))
	}
}
