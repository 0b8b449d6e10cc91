package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eternalApril/lettuce/internal/config"
	"github.com/eternalApril/lettuce/internal/persistence"
	"github.com/eternalApril/lettuce/internal/resp"
	"github.com/eternalApril/lettuce/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrSnapshotDisabled is returned by save operations when snapshots are turned off
	ErrSnapshotDisabled = errors.New("snapshot persistence is disabled")
	// ErrSaveInProgress is returned by BackgroundSave while another background save runs
	ErrSaveInProgress = errors.New("background save already in progress")
)

// maxGCRounds bounds how many sampling rounds one GC tick may run back to back
const maxGCRounds = 16

// Engine coordinates the execution of commands and manages the background tasks of the repository
type Engine struct {
	commands map[string]command    // Registry of available commands (the key is the command name in uppercase)
	storage  storage.Storage       // Interface to the underlying KV storage
	cfg      *config.Config        // Configuration engine
	aof      *persistence.AOF      // AOF instance, nil when disabled
	snapshot *persistence.Snapshot // Snapshot instance, nil when disabled
	metrics  *Metrics
	logger   *zap.Logger

	saving   atomic.Bool    // a background save is running
	bg       sync.WaitGroup // background saves
	stopOnce sync.Once      // Ensures that the stop happens only once
}

// Option configures optional Engine collaborators
type Option func(*Engine)

// WithMetrics makes the engine count and time every command
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine initializes the engine, registers the commands and restores the dataset.
// The AOF, when enabled, is replayed and takes precedence over the snapshot
func NewEngine(s storage.Storage, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	engine := &Engine{
		commands: make(map[string]command),
		storage:  s,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(engine)
	}
	engine.registerBasicCommand()

	if cfg.Persistence.Snapshot.Enabled {
		engine.snapshot = persistence.NewSnapshot(cfg.Persistence.Snapshot.Filename, logger)
	}

	if cfg.Persistence.AOF.Enabled {
		aof, err := persistence.NewAOF(
			cfg.Persistence.AOF.Filename,
			cfg.Persistence.AOF.Fsync,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("open aof: %w", err)
		}

		// replay before wiring the AOF, so restored commands are not appended again
		if err := engine.restoreAOF(aof); err != nil {
			aof.Close() //nolint:errcheck
			return nil, fmt.Errorf("restore aof: %w", err)
		}
		engine.aof = aof
	} else if engine.snapshot != nil {
		engine.loadSnapshot()
	}

	return engine, nil
}

func (e *Engine) loadSnapshot() {
	err := e.snapshot.Load(e.storage)
	switch {
	case err == nil:
	case errors.Is(err, persistence.ErrNoSnapshot):
		e.logger.Info("No snapshot found, starting empty", zap.String("file", e.snapshot.Filename()))
	default:
		e.logger.Error("Failed to load snapshot, starting empty", zap.Error(err))
	}
}

func (e *Engine) restoreAOF(aof *persistence.AOF) error {
	cmds, err := aof.Load()
	if err != nil {
		return err
	}

	e.logger.Info("Restoring AOF...", zap.Int("commands", len(cmds)))

	failed := 0
	for _, c := range cmds {
		res := e.execute(strings.ToUpper(c[0]), c[1:])
		if res.Type == resp.TypeError {
			failed++
		}
	}

	e.logger.Info("AOF restore finished", zap.Int("failed", failed))
	return nil
}

// Run drives the background jobs (active expiration, periodic snapshots) until ctx is done
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	if e.cfg.GC.Enabled && e.cfg.GC.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.gcLoop(ctx)
		}()
	}

	if e.snapshot != nil && e.cfg.Persistence.Snapshot.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.autoSaveLoop(ctx, e.cfg.Persistence.Snapshot.Interval)
		}()
	}

	wg.Wait()
	return nil
}

func (e *Engine) autoSaveLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.Save(); err != nil {
				e.logger.Error("Auto-save snapshot failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// gcLoop triggers the active expiration mechanism
func (e *Engine) gcLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.GC.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// keep sampling while a large share of the sample was expired
			for round := 0; round < maxGCRounds; round++ {
				ratio := e.storage.DeleteExpired(e.cfg.GC.SamplesPerCheck)

				if ratio > 0 && e.logger.Core().Enabled(zap.DebugLevel) {
					e.logger.Debug("GC delete expired", zap.Float64("expired_ratio", ratio))
				}

				if ratio <= e.cfg.GC.MatchThreshold {
					break
				}
			}
		case <-ctx.Done():
			e.logger.Info("GC stopped")
			return
		}
	}
}

// Save writes a snapshot synchronously
func (e *Engine) Save() error {
	if e.snapshot == nil {
		return ErrSnapshotDisabled
	}
	return e.snapshot.Save(e.storage)
}

// BackgroundSave starts a snapshot in its own goroutine
func (e *Engine) BackgroundSave() error {
	if e.snapshot == nil {
		return ErrSnapshotDisabled
	}
	if !e.saving.CompareAndSwap(false, true) {
		return ErrSaveInProgress
	}

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		defer e.saving.Store(false)

		if err := e.snapshot.Save(e.storage); err != nil {
			e.logger.Error("Background save failed", zap.Error(err))
		}
	}()
	return nil
}

// register adds a new command to the engine. The command name is uppercase
func (e *Engine) register(name string, cmd command) {
	e.commands[strings.ToUpper(name)] = cmd
}

// registerBasicCommand fills the registry with standard commands
func (e *Engine) registerBasicCommand() {
	// connection and server
	e.register("PING", commandFunc(ping))
	e.register("ECHO", commandFunc(echo))
	e.register("COMMAND", commandFunc(cmd))
	e.register("FLUSHALL", commandFunc(flushAll))
	e.register("DBSIZE", commandFunc(dbSize))
	e.register("SAVE", commandFunc(save))
	e.register("BGSAVE", commandFunc(bgsave))

	// generic
	e.register("KEYS", commandFunc(keys))
	e.register("TYPE", commandFunc(typeOf))
	e.register("DEL", commandFunc(del))
	e.register("EXPIRE", commandFunc(expire))
	e.register("RENAME", commandFunc(rename))
	e.register("TTL", commandFunc(ttl))
	e.register("PTTL", commandFunc(pttl))
	e.register("PERSIST", commandFunc(persist))

	// string
	e.register("GET", commandFunc(get))
	e.register("SET", commandFunc(set))

	// list
	e.register("LPUSH", commandFunc(lpush))
	e.register("RPUSH", commandFunc(rpush))
	e.register("LPOP", commandFunc(lpop))
	e.register("RPOP", commandFunc(rpop))
	e.register("LLEN", commandFunc(llen))
	e.register("LREM", commandFunc(lrem))
	e.register("LINDEX", commandFunc(lindex))
	e.register("LSET", commandFunc(lset))
	e.register("LGET", commandFunc(lget))
	e.register("LRANGE", commandFunc(lrange))

	// hash
	e.register("HSET", commandFunc(hset))
	e.register("HGET", commandFunc(hget))
	e.register("HEXISTS", commandFunc(hexists))
	e.register("HDEL", commandFunc(hdel))
	e.register("HGETALL", commandFunc(hgetall))
	e.register("HKEYS", commandFunc(hkeys))
	e.register("HVALS", commandFunc(hvals))
	e.register("HLEN", commandFunc(hlen))
	e.register("HMSET", commandFunc(hmset))
}

// Execute finds the command by name and executes it with the passed arguments.
// If the command is not found, returns an error in the RESP format
func (e *Engine) Execute(name string, args []string) resp.Value {
	name = strings.ToUpper(name)

	if e.logger.Core().Enabled(zap.DebugLevel) {
		// Log the command name and number of args
		e.logger.Debug("executing command",
			zap.String("cmd", name),
			zap.Int("args_count", len(args)),
		)
	}

	start := time.Now()
	res := e.execute(name, args)
	e.metrics.observe(name, res.Type == resp.TypeError, time.Since(start))

	if e.aof != nil && res.Type != resp.TypeError && isWriteCommand(name) {
		if err := e.aof.Append(name, args); err != nil {
			e.logger.Error("Failed to append command to AOF", zap.String("cmd", name), zap.Error(err))
		}
	}

	return res
}

// execute validates arity and runs the handler, name must be uppercase
func (e *Engine) execute(name string, args []string) resp.Value {
	cmd, ok := e.commands[name]
	if !ok {
		return resp.MakeError(fmt.Sprintf("ERR Unknown command '%s'", name))
	}

	if !checkArity(name, len(args)+1) {
		return resp.MakeErrorWrongNumberOfArguments(name)
	}

	return cmd.execute(&request{
		args:    args,
		storage: e.storage,
		engine:  e,
	})
}

// Dispatch decodes one raw command, executes it and returns the encoded reply
func (e *Engine) Dispatch(raw []byte) []byte {
	tokens, err := resp.ParseCommand(raw)
	if err != nil {
		return resp.Marshal(resp.MakeError("ERR Protocol error: " + err.Error()))
	}
	if len(tokens) == 0 {
		return resp.Marshal(resp.MakeError("ERR empty command"))
	}

	return resp.Marshal(e.Execute(tokens[0], tokens[1:]))
}

// Shutdown shuts down the engine and its background services correctly.
// A final snapshot is written when snapshots are enabled
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		e.bg.Wait()

		if e.snapshot != nil {
			if err := e.snapshot.Save(e.storage); err != nil {
				e.logger.Error("Final snapshot failed", zap.Error(err))
			}
		}

		if e.aof != nil {
			if err := e.aof.Close(); err != nil {
				e.logger.Error("Failed to close AOF", zap.Error(err))
			}
		}
	})
}
