package logger

import (
	"bytes"
	"log/slog"
	"os"
	"sync"
)

// EnvTestDebug turns on debug output in NewTestLogger.
const EnvTestDebug = "ADZANTUNE_TEST_DEBUG"

// NewTestLogger creates a quiet logger for tests. It logs WARN and above
// unless ADZANTUNE_TEST_DEBUG is set.
func NewTestLogger() *slog.Logger {
	level := slog.LevelWarn
	if os.Getenv(EnvTestDebug) != "" {
		level = slog.LevelDebug
	}
	return NewLogger(Config{Level: level, Output: os.Stdout})
}

// Capture is a goroutine-safe buffer for asserting on log output.
type Capture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// String returns everything logged so far.
func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// NewCaptureLogger returns a text logger at level that writes into a Capture.
func NewCaptureLogger(level slog.Level) (*slog.Logger, *Capture) {
	capture := &Capture{}
	return slog.New(slog.NewTextHandler(capture, &slog.HandlerOptions{Level: level})), capture
}
