package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNew_Level(t *testing.T) {
	log, atom := New("warn", "console")
	defer log.Sync() //nolint:errcheck

	assert.False(t, log.Core().Enabled(zap.InfoLevel))
	assert.True(t, log.Core().Enabled(zap.WarnLevel))

	SetLevel(atom, "debug")
	assert.True(t, log.Core().Enabled(zap.DebugLevel))

	SetLevel(atom, "nonsense")
	assert.Equal(t, zap.InfoLevel, atom.Level())
}

func TestNew_UnknownLevelAndEncoding(t *testing.T) {
	log, atom := New("loud", "xml")
	defer log.Sync() //nolint:errcheck

	assert.Equal(t, zap.InfoLevel, atom.Level())
}
