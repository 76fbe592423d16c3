// Package wasmsandbox embeds a WebAssembly guest exporting log_action and
// multiply, and provides the env.log console import it needs.
//
// The guest ABI is:
//
//	(export "memory" (memory))
//	(export "multiply"   (func (param i32 i32) (result i32)))
//	(export "log_action" (func (param $ptr i32) (param $len i32)))
//	(export "malloc"     (func (param $size i32) (result i32)))
//	(export "free"       (func (param $ptr i32)))
//	(import "env" "log"  (func (param $ptr i32) (param $len i32)))
//
// See guest/wasip1 for a Go implementation.
package wasmsandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/experimental/logging"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const (
	guestModuleName = "sandbox"
	hostModuleName  = "env"

	exportMultiply  = "multiply"
	exportLogAction = "log_action"
	exportMalloc    = "malloc"
	exportFree      = "free"
	exportMemory    = "memory"
	importLog       = "log"

	// initializeFunction is exported by reactors, such as a Go program built
	// with -buildmode=c-shared, instead of _start.
	initializeFunction = "_initialize"
)

var (
	// ErrClosed is returned by calls on a Sandbox after Close.
	ErrClosed = errors.New("sandbox closed")

	// ErrInvalidGuest is wrapped by Instantiate when the guest does not
	// satisfy the ABI.
	ErrInvalidGuest = errors.New("invalid guest")
)

const i32 = api.ValueTypeI32

// guestExports are the functions every guest must export.
var guestExports = []struct {
	name            string
	params, results []api.ValueType
}{
	{name: exportMultiply, params: []api.ValueType{i32, i32}, results: []api.ValueType{i32}},
	{name: exportLogAction, params: []api.ValueType{i32, i32}},
	{name: exportMalloc, params: []api.ValueType{i32}, results: []api.ValueType{i32}},
	{name: exportFree, params: []api.ValueType{i32}},
}

// Sandbox is an instantiated guest.
//
// Calls are serialized, as the guest has a single thread of execution and
// api.Function is not goroutine-safe.
type Sandbox struct {
	mu     sync.Mutex
	closed bool

	runtime wazero.Runtime
	mod     api.Module
	cfg     *config

	multiply, logAction, malloc, free api.Function
}

// Instantiate compiles guest, verifies it satisfies the ABI and instantiates
// it along with WASI and the env host module.
//
// The returned Sandbox must be closed to release its resources. On error,
// everything created so far is already released.
func Instantiate(ctx context.Context, guest []byte, c Config) (*Sandbox, error) {
	cfg, ok := c.(*config)
	if !ok || cfg == nil {
		cfg = defaultConfig
	}
	logger := cfg.logger

	// Listeners are bound at compile time, so must be in the context before
	// any module is compiled.
	var factories []experimental.FunctionListenerFactory
	if cfg.trace != nil {
		factories = append(factories, logging.NewHostLoggingListenerFactory(cfg.trace, logging.LogScopeAll))
	}
	if cfg.metrics != nil {
		m, err := newCallMetrics(cfg.metrics)
		if err != nil {
			return nil, fmt.Errorf("error registering metrics: %w", err)
		}
		factories = append(factories, m)
	}
	switch len(factories) {
	case 0:
	case 1:
		ctx = experimental.WithFunctionListenerFactory(ctx, factories[0])
	default:
		ctx = experimental.WithFunctionListenerFactory(ctx, experimental.MultiFunctionListenerFactory(factories...))
	}

	var rtc wazero.RuntimeConfig
	if cfg.interpreter {
		rtc = wazero.NewRuntimeConfigInterpreter()
	} else {
		rtc = wazero.NewRuntimeConfig()
	}
	logger.Debug().Bool("interpreter", cfg.interpreter).Msg("creating runtime")
	r := wazero.NewRuntimeWithConfig(ctx, rtc)

	s, err := instantiate(ctx, r, guest, cfg)
	if err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	return s, nil
}

func instantiate(ctx context.Context, r wazero.Runtime, guest []byte, cfg *config) (*Sandbox, error) {
	logger := cfg.logger

	compiled, err := r.CompileModule(ctx, guest)
	if err != nil {
		return nil, fmt.Errorf("error compiling guest: %w", err)
	}
	if err = validateExports(compiled); err != nil {
		return nil, err
	}
	logger.Debug().Int("bytes", len(guest)).Msg("compiled guest")

	// Go guests need WASI even though the ABI doesn't use it.
	if _, err = wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return nil, fmt.Errorf("error instantiating wasi: %w", err)
	}

	console := cfg.console
	_, err = r.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, offset, byteCount uint32) {
			buf, ok := m.Memory().Read(offset, byteCount)
			if !ok {
				panic(fmt.Errorf("Memory.Read(%d, %d) out of range of memory size %d",
					offset, byteCount, m.Memory().Size()))
			}
			console.Log(string(buf))
		}).
		WithParameterNames("ptr", "len").
		Export(importLog).
		Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("error instantiating %s: %w", hostModuleName, err)
	}

	mc := wazero.NewModuleConfig().
		WithName(guestModuleName).
		WithStderr(cfg.stderr).
		WithStartFunctions(initializeFunction)
	mod, err := r.InstantiateModule(ctx, compiled, mc)
	if err != nil {
		return nil, fmt.Errorf("error instantiating guest: %w", err)
	}
	logger.Debug().Str("module", guestModuleName).Msg("instantiated guest")

	return &Sandbox{
		runtime:   r,
		mod:       mod,
		cfg:       cfg,
		multiply:  mod.ExportedFunction(exportMultiply),
		logAction: mod.ExportedFunction(exportLogAction),
		malloc:    mod.ExportedFunction(exportMalloc),
		free:      mod.ExportedFunction(exportFree),
	}, nil
}

// validateExports ensures each function in guestExports is exported with the
// expected signature, and that memory is exported.
func validateExports(compiled wazero.CompiledModule) error {
	if _, ok := compiled.ExportedMemories()[exportMemory]; !ok {
		return fmt.Errorf("%w: missing %s export", ErrInvalidGuest, exportMemory)
	}
	exported := compiled.ExportedFunctions()
	for _, want := range guestExports {
		def, ok := exported[want.name]
		if !ok {
			return fmt.Errorf("%w: missing %s export", ErrInvalidGuest, want.name)
		}
		if !equalTypes(def.ParamTypes(), want.params) || !equalTypes(def.ResultTypes(), want.results) {
			return fmt.Errorf("%w: %s has signature %s, expected %s", ErrInvalidGuest, want.name,
				signatureString(def.ParamTypes(), def.ResultTypes()), signatureString(want.params, want.results))
		}
	}
	return nil
}

// LogAction passes text to the guest's log_action, which sends it formatted
// to the Console. text is copied into a buffer allocated with the guest's
// malloc, which is freed before returning.
func (s *Sandbox) LogAction(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	size := uint64(len(text))
	results, err := s.malloc.Call(ctx, size)
	if err != nil {
		return fmt.Errorf("error allocating %d bytes: %w", size, err)
	}
	ptr := results[0]
	// The guest doesn't know the host holds ptr, so free it when finished.
	defer func() {
		if _, ferr := s.free.Call(ctx, ptr); ferr != nil {
			s.cfg.logger.Warn().Err(ferr).Uint64("ptr", ptr).Msg("error freeing guest buffer")
		}
	}()

	// The pointer is a linear memory offset, which is where we write the text.
	if !s.mod.Memory().Write(uint32(ptr), []byte(text)) {
		return fmt.Errorf("Memory.Write(%d, %d) out of range of memory size %d",
			ptr, size, s.mod.Memory().Size())
	}

	s.cfg.logger.Debug().Int("len", len(text)).Msg(exportLogAction)
	if _, err = s.logAction.Call(ctx, ptr, size); err != nil {
		return fmt.Errorf("error calling %s: %w", exportLogAction, err)
	}
	return nil
}

// Multiply returns the guest's multiply of a and b. Overflow wraps.
func (s *Sandbox) Multiply(ctx context.Context, a, b int32) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	s.cfg.logger.Debug().Int32("a", a).Int32("b", b).Msg(exportMultiply)
	results, err := s.multiply.Call(ctx, api.EncodeI32(a), api.EncodeI32(b))
	if err != nil {
		return 0, fmt.Errorf("error calling %s: %w", exportMultiply, err)
	}
	return api.DecodeI32(results[0]), nil
}

// Close releases the guest and its runtime. It is safe to call more than
// once.
func (s *Sandbox) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.runtime.Close(ctx)
}
