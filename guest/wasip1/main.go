//go:build wasip1

// Command wasip1 is the sandbox guest for WASI hosts such as wazero.
//
// Build it as a reactor, so the host can call exports after _initialize:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o sandbox.wasm ./guest/wasip1
package main

import (
	"runtime"
	"unsafe"

	"github.com/mcpdemo/wasmsandbox/action"
	"github.com/mcpdemo/wasmsandbox/internal/guestmem"
)

// main is required by the Go toolchain, but never called in a reactor.
func main() {}

// allocations pins buffers handed to the host so the garbage collector does
// not reclaim them before free.
var allocations = map[uint32][]byte{}

// _log is a WebAssembly import which writes a string (linear memory offset,
// byteCount) to the host console.
//
//go:wasmimport env log
func _log(ptr, size uint32)

// log writes message to the host console.
func log(message string) {
	ptr, size := stringToPtr(message)
	_log(ptr, size)
	runtime.KeepAlive(message) // keep message alive until ptr is no longer needed.
}

// _logAction is a WebAssembly export that accepts a string pointer (linear
// memory offset) and logs it under action.Template.
//
//go:wasmexport log_action
func _logAction(ptr, size uint32) {
	log(action.Format(ptrToString(ptr, size)))
}

//go:wasmexport multiply
func _multiply(a, b int32) int32 {
	return action.Multiply(a, b)
}

// _malloc returns a buffer of size bytes for the host to write into. A zero
// size still returns a valid, unique offset. Zero is returned when size can
// never fit in linear memory.
//
//go:wasmexport malloc
func _malloc(size uint32) uint32 {
	n, ok := guestmem.BufferLen(size)
	if !ok {
		return 0
	}
	buf := make([]byte, n)
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	allocations[ptr] = buf
	return ptr
}

// _free releases a buffer returned by _malloc. Unknown pointers are ignored.
//
//go:wasmexport free
func _free(ptr uint32) {
	delete(allocations, ptr)
}

// ptrToString returns a string from WebAssembly compatible numeric types
// representing its pointer and length.
func ptrToString(ptr uint32, size uint32) string {
	if size == 0 {
		return ""
	}
	return unsafe.String((*byte)(unsafe.Pointer(uintptr(ptr))), size)
}

// stringToPtr returns a pointer and size pair for the given string in a way
// compatible with WebAssembly numeric types.
// The returned pointer aliases the string hence the string must be kept alive
// until ptr is no longer needed.
func stringToPtr(s string) (uint32, uint32) {
	ptr := unsafe.Pointer(unsafe.StringData(s))
	return uint32(uintptr(ptr)), uint32(len(s))
}
