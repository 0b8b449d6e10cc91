package persistence

import (
	"bufio"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/eternalApril/lettuce/internal/resp"
	"go.uber.org/zap"
)

type fsyncStrategy int

const (
	fsyncAlways fsyncStrategy = iota + 1
	fsyncEverySec
	fsyncNo
)

// ErrAOFClosed is returned by Append after Close
var ErrAOFClosed = errors.New("aof is closed")

// AOF Append Only File persistence
type AOF struct {
	file     *os.File
	writer   *bufio.Writer
	filename string
	strategy fsyncStrategy

	commandsChan chan []byte

	mu       sync.RWMutex // guards closed against concurrent Append and Close
	closed   bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewAOF construct AOF structure
func NewAOF(filename string, strategyStr string, logger *zap.Logger) (*AOF, error) {
	strategy := parseStrategy(strategyStr)

	// open file in Append mode, Create if not exists, Read/Write
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	aof := &AOF{
		file:         f,
		writer:       bufio.NewWriter(f), // default 4KB buffer
		filename:     filename,
		strategy:     strategy,
		commandsChan: make(chan []byte, 10000), // buffer for burst writes
		stopChan:     make(chan struct{}),
		logger:       logger,
	}

	// background disk writer
	aof.wg.Add(1)
	go aof.listen()

	return aof, nil
}

// Append serializes a command and queues it for the background writer
func (a *AOF) Append(name string, args []string) error {
	payload, err := resp.SerializeCommand(name, args)
	if err != nil {
		return err
	}
	return a.Write(payload)
}

// Write send command in channel
func (a *AOF) Write(payload []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrAOFClosed
	}

	// if channel is full, this WILL block, providing backpressure
	a.commandsChan <- payload
	return nil
}

func (a *AOF) listen() {
	defer a.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case p := <-a.commandsChan:
			a.write(p)

			if a.strategy == fsyncAlways {
				a.sync()
			}

		case <-ticker.C:
			switch a.strategy {
			case fsyncEverySec:
				a.sync()
			case fsyncNo:
				// leave syncing to the OS, but do not keep commands in user space
				a.flush()
			}

		case <-a.stopChan:
			// writers are gone, drain what they queued
			for {
				select {
				case p := <-a.commandsChan:
					a.write(p)
				default:
					a.sync()
					return
				}
			}
		}
	}
}

func (a *AOF) write(p []byte) {
	if _, err := a.writer.Write(p); err != nil {
		a.logger.Error("AOF write error", zap.Error(err))
	}
}

func (a *AOF) flush() {
	if err := a.writer.Flush(); err != nil {
		a.logger.Error("AOF flush error", zap.Error(err))
	}
}

func (a *AOF) sync() {
	a.flush()
	if err := a.file.Sync(); err != nil {
		a.logger.Error("AOF fsync error", zap.Error(err))
	}
}

// Close AOF persistence
func (a *AOF) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.stopChan)
	a.mu.Unlock()

	a.wg.Wait() // wait for background routine to finish last flush
	return a.file.Close()
}

func parseStrategy(s string) fsyncStrategy {
	switch s {
	case "always":
		return fsyncAlways
	case "no":
		return fsyncNo
	default:
		return fsyncEverySec
	}
}
