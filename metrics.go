package wasmsandbox

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
)

const metricsNamespace = "wasmsandbox"

// callMetrics counts calls to exported guest functions and host functions.
type callMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// newCallMetrics registers the collectors with reg, reusing ones a previous
// sandbox already registered.
func newCallMetrics(reg prometheus.Registerer) (*callMetrics, error) {
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "calls_total",
		Help:      "Count of function calls across the guest boundary.",
	}, []string{"module", "function"})
	if err := reg.Register(calls); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		calls = are.ExistingCollector.(*prometheus.CounterVec)
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "call_duration_seconds",
		Help:      "Latency of function calls across the guest boundary.",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
	}, []string{"module", "function"})
	if err := reg.Register(duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	return &callMetrics{calls: calls, duration: duration}, nil
}

// NewFunctionListener implements experimental.FunctionListenerFactory.
//
// Only functions callable by the host or defined by it are observed, which
// weeds out guest internals such as the garbage collector.
func (m *callMetrics) NewFunctionListener(def api.FunctionDefinition) experimental.FunctionListener {
	exports := def.ExportNames()
	if def.GoFunction() == nil && len(exports) == 0 {
		return nil
	}

	moduleName := def.ModuleName()
	if moduleName == "" {
		moduleName = guestModuleName
	}
	name := def.Name()
	if len(exports) > 0 {
		name = exports[0]
	}
	return &callListener{
		calls:    m.calls.WithLabelValues(moduleName, name),
		duration: m.duration.WithLabelValues(moduleName, name),
	}
}

// callListener times one function. Calls into a sandbox are serialized, but
// a function may be re-entered, so start times form a stack.
type callListener struct {
	calls    prometheus.Counter
	duration prometheus.Observer
	starts   []time.Time
}

// Before implements experimental.FunctionListener.
func (l *callListener) Before(context.Context, api.Module, api.FunctionDefinition, []uint64, experimental.StackIterator) {
	l.calls.Inc()
	l.starts = append(l.starts, time.Now())
}

// After implements experimental.FunctionListener.
func (l *callListener) After(context.Context, api.Module, api.FunctionDefinition, []uint64) {
	l.observe()
}

// Abort implements experimental.FunctionListener.
func (l *callListener) Abort(context.Context, api.Module, api.FunctionDefinition, error) {
	l.observe()
}

func (l *callListener) observe() {
	n := len(l.starts) - 1
	if n < 0 {
		return
	}
	l.duration.Observe(time.Since(l.starts[n]).Seconds())
	l.starts = l.starts[:n]
}
