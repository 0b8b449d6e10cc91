package persistence

import (
	"errors"
	"io"
	"os"

	"github.com/eternalApril/lettuce/internal/resp"
	"go.uber.org/zap"
)

// Load reads the AOF file and returns the commands to be replayed, oldest first.
// A command cut short at the end of the file (crash during write) is dropped with a warning
func (a *AOF) Load() ([][]string, error) {
	return loadCommands(a.filename, a.logger)
}

func loadCommands(filename string, logger *zap.Logger) ([][]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Fresh start
		}
		return nil, err
	}
	defer file.Close() //nolint:errcheck

	reader := resp.NewDecoder(file)
	var commands [][]string

	for {
		cmd, err := reader.ReadCommand()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Warn("AOF ends with a truncated command, ignoring it",
					zap.String("file", filename),
					zap.Int("loaded", len(commands)),
				)
				break
			}
			return nil, err
		}
		if len(cmd) == 0 {
			continue
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}
