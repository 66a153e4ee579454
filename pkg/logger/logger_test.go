package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	cases := map[string]zap.AtomicLevel{
		"debug":   zap.NewAtomicLevelAt(zap.DebugLevel),
		"info":    zap.NewAtomicLevelAt(zap.InfoLevel),
		"warn":    zap.NewAtomicLevelAt(zap.WarnLevel),
		"error":   zap.NewAtomicLevelAt(zap.ErrorLevel),
		"verbose": zap.NewAtomicLevelAt(zap.InfoLevel),
	}
	for name, want := range cases {
		log, err := New(name)
		require.NoError(t, err, name)
		require.True(t, log.Core().Enabled(want.Level()), name)
		if want.Level() > zap.DebugLevel {
			require.False(t, log.Core().Enabled(want.Level()-1), name)
		}
	}
}
