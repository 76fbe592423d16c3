package wasmsandbox

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Console is the host-provided channel the guest logs to through env.log.
// Log is called exactly once per env.log call, with the bytes the guest
// passed decoded as a string.
type Console interface {
	Log(msg string)
}

// ConsoleFunc adapts a function to Console.
type ConsoleFunc func(msg string)

// Log implements Console.Log
func (f ConsoleFunc) Log(msg string) {
	f(msg)
}

// NewWriterConsole returns a Console writing each message to w followed by a
// newline. Writes are serialized, so w may be shared between sandboxes.
func NewWriterConsole(w io.Writer) Console {
	return &writerConsole{w: w}
}

type writerConsole struct {
	mu sync.Mutex
	w  io.Writer
}

// Log implements Console.Log
func (c *writerConsole) Log(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, msg)
}

// NewLoggerConsole returns a Console emitting each message as an info event
// on logger.
func NewLoggerConsole(logger zerolog.Logger) Console {
	return loggerConsole{logger: logger}
}

type loggerConsole struct {
	logger zerolog.Logger
}

// Log implements Console.Log
func (c loggerConsole) Log(msg string) {
	c.logger.Info().Str("source", "guest").Msg(msg)
}
