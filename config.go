package wasmsandbox

import (
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero/experimental/logging"
)

// Config controls how a guest is embedded, with the default implementation as
// NewConfig.
//
// Note: Config is immutable. Each WithXXX function returns a new instance
// including the corresponding change.
type Config interface {
	// WithConsole sets the sink for messages the guest sends to env.log.
	// Defaults to a WriterConsole on os.Stdout.
	WithConsole(Console) Config

	// WithInterpreter forces the interpreter engine. Otherwise, the
	// compiler is used on platforms that support it.
	WithInterpreter(bool) Config

	// WithTrace logs each exported and host function call to w using
	// wazero's logging listener. Defaults to nil, which disables tracing.
	//
	// Note: A w that does not implement io.StringWriter is adapted, so any
	// io.Writer works.
	WithTrace(w io.Writer) Config

	// WithMetrics registers call counters and latency histograms with reg.
	// Defaults to nil, which disables metrics.
	WithMetrics(reg prometheus.Registerer) Config

	// WithLogger sets the diagnostic logger. Defaults to zerolog.Nop.
	WithLogger(zerolog.Logger) Config

	// WithStderr sets where the guest's standard error goes, which is where
	// the Go runtime reports a guest panic. Defaults to io.Discard.
	WithStderr(io.Writer) Config
}

// NewConfig returns a Config with the documented defaults.
func NewConfig() Config {
	return defaultConfig.clone()
}

type config struct {
	console     Console
	interpreter bool
	trace       logging.Writer
	metrics     prometheus.Registerer
	logger      zerolog.Logger
	stderr      io.Writer
}

// defaultConfig helps avoid copy/pasting the wrong defaults.
var defaultConfig = &config{
	console: NewWriterConsole(os.Stdout),
	logger:  zerolog.Nop(),
	stderr:  io.Discard,
}

// clone ensures all fields are copied.
func (c *config) clone() *config {
	ret := *c
	return &ret
}

// WithConsole implements Config.WithConsole
func (c *config) WithConsole(console Console) Config {
	ret := c.clone()
	if console == nil {
		console = defaultConfig.console
	}
	ret.console = console
	return ret
}

// WithInterpreter implements Config.WithInterpreter
func (c *config) WithInterpreter(interpreter bool) Config {
	ret := c.clone()
	ret.interpreter = interpreter
	return ret
}

// WithTrace implements Config.WithTrace
func (c *config) WithTrace(w io.Writer) Config {
	ret := c.clone()
	ret.trace = traceWriter(w)
	return ret
}

// traceWriter returns w as a logging.Writer, or nil when w is nil.
func traceWriter(w io.Writer) logging.Writer {
	switch w := w.(type) {
	case nil:
		return nil
	case logging.Writer:
		return w
	default:
		return stringWriter{w}
	}
}

// stringWriter adds WriteString to an io.Writer.
type stringWriter struct {
	io.Writer
}

// WriteString implements io.StringWriter.WriteString
func (w stringWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// WithMetrics implements Config.WithMetrics
func (c *config) WithMetrics(reg prometheus.Registerer) Config {
	ret := c.clone()
	ret.metrics = reg
	return ret
}

// WithLogger implements Config.WithLogger
func (c *config) WithLogger(logger zerolog.Logger) Config {
	ret := c.clone()
	ret.logger = logger
	return ret
}

// WithStderr implements Config.WithStderr
func (c *config) WithStderr(w io.Writer) Config {
	ret := c.clone()
	if w == nil {
		w = io.Discard
	}
	ret.stderr = w
	return ret
}
