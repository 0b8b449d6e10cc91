package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/eternalApril/lettuce/internal/storage"
	"go.uber.org/zap"
)

// ErrNoSnapshot is returned by Load when the snapshot file does not exist
var ErrNoSnapshot = errors.New("snapshot file not found")

// Snapshot stores the whole key space in a line-oriented text file
type Snapshot struct {
	filename string
	logger   *zap.Logger
	mu       sync.Mutex // serializes saves, they share the temporary file
}

// NewSnapshot construct Snapshot structure
func NewSnapshot(filename string, logger *zap.Logger) *Snapshot {
	return &Snapshot{
		filename: filename,
		logger:   logger,
	}
}

// Filename returns the path of the snapshot file
func (s *Snapshot) Filename() string {
	return s.filename
}

// Save performs an atomic save operation
func (s *Snapshot) Save(db storage.Storage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	records := db.Export()
	tmpFile := s.filename + ".tmp"

	f, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmpFile) //nolint:errcheck // no-op once renamed

	writer := bufio.NewWriterSize(f, 4*1024*1024)

	if err := WriteRecords(writer, records); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := writer.Flush(); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("sync snapshot: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmpFile, s.filename); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	s.logger.Info("snapshot saved",
		zap.String("file", s.filename),
		zap.Int("keys", len(records)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Load replaces the content of db with the snapshot.
// On any error db is left untouched
func (s *Snapshot) Load(db storage.Storage) error {
	f, err := os.Open(s.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNoSnapshot
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close() //nolint:errcheck

	start := time.Now()
	records, err := ReadRecords(f, time.Now())
	if err != nil {
		return fmt.Errorf("load %s: %w", s.filename, err)
	}

	db.Import(records)

	s.logger.Info("snapshot loaded",
		zap.String("file", s.filename),
		zap.Int("keys", len(records)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
