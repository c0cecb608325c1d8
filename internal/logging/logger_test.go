package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNop_DiscardsAllLevelsWithoutPanicking(t *testing.T) {
	l := Nop()
	l.Debug("debug %s", "x")
	l.Info("info %d", 1)
	l.Warn("warn")
	l.Error("error: %v", "boom")
}

func TestNew_ReturnsANonNilLoggerForEachLevel(t *testing.T) {
	l := New("test-component")
	require.NotNil(t, l)

	// stdLogger writes to os.Stderr directly, so these calls are only
	// checked for not panicking rather than captured output.
	l.Debug("starting %s", "up")
	l.Info("listening on %d", 8080)
	l.Warn("retry %d of %d", 1, 3)
	l.Error("failed: %v", "boom")
}
