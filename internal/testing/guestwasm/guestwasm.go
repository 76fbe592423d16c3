// Package guestwasm assembles WebAssembly binaries that follow the sandbox
// guest ABI, so host code can be tested without a Go toolchain targeting
// wasip1.
//
// The default module, Sandbox, behaves like guest/wasip1: multiply is i32.mul
// and log_action copies action.Prefix and the text into a fresh buffer, then
// calls env.log once.
package guestwasm

import (
	"github.com/mcpdemo/wasmsandbox/action"
	"github.com/mcpdemo/wasmsandbox/internal/leb128"
)

// Value types.
const (
	I32 byte = 0x7f
	I64 byte = 0x7e
)

// Opcodes used by the bodies in this package.
const (
	OpUnreachable byte = 0x00
	OpEnd         byte = 0x0b
	OpCall        byte = 0x10
	OpLocalGet    byte = 0x20
	OpLocalTee    byte = 0x22
	OpGlobalGet   byte = 0x23
	OpGlobalSet   byte = 0x24
	OpI32Const    byte = 0x41
	OpI32Add      byte = 0x6a
	OpI32Mul      byte = 0x6c
	OpI64Mul      byte = 0x7e
	OpMiscPrefix  byte = 0xfc

	miscMemoryCopy byte = 0x0a
)

const (
	sectionIDCustom   byte = 0
	sectionIDType     byte = 1
	sectionIDImport   byte = 2
	sectionIDFunction byte = 3
	sectionIDMemory   byte = 5
	sectionIDGlobal   byte = 6
	sectionIDExport   byte = 7
	sectionIDCode     byte = 10
	sectionIDData     byte = 11

	subsectionIDModuleName    byte = 0
	subsectionIDFunctionNames byte = 1

	externTypeFunc   byte = 0x00
	externTypeMemory byte = 0x02
)

var (
	magic   = []byte{0x00, 'a', 's', 'm'}
	version = []byte{0x01, 0x00, 0x00, 0x00}
)

// Function indices of the default module. The single import comes first.
const (
	FuncIndexLog uint32 = iota
	FuncIndexMultiply
	FuncIndexLogAction
	FuncIndexMalloc
	FuncIndexFree
)

// Import is a function imported by the module.
type Import struct {
	Module, Name    string
	Params, Results []byte
}

// Func is a function defined by the module. An empty Export leaves it
// unexported. Body includes the trailing OpEnd.
type Func struct {
	Export          string
	Params, Results []byte
	Locals          []byte
	Body            []byte
}

// Module is a minimal module with one memory, one mutable i32 global used as
// the heap pointer and one active data segment at offset zero.
//
// Name and the export names end up in the "name" custom section, so traces
// and stack traces read like those of a compiled guest.
type Module struct {
	Name           string
	Imports        []Import
	Funcs          []Func
	MemoryMinPages uint32
	HeapBase       int32
	Data           []byte
}

// Sandbox returns a module implementing the guest ABI.
func Sandbox() *Module {
	n := int32(len(action.Prefix))
	logAction := Concat(
		// dst = malloc(len(prefix) + len)
		I32Const(n), []byte{OpLocalGet, 1, OpI32Add, OpCall, byte(FuncIndexMalloc), OpLocalTee, 2},
		// memory.copy(dst, 0, len(prefix))
		I32Const(0), I32Const(n), memoryCopy(),
		// memory.copy(dst + len(prefix), ptr, len)
		[]byte{OpLocalGet, 2}, I32Const(n), []byte{OpI32Add, OpLocalGet, 0, OpLocalGet, 1}, memoryCopy(),
		// log(dst, len(prefix) + len)
		[]byte{OpLocalGet, 2, OpLocalGet, 1}, I32Const(n), []byte{OpI32Add, OpCall, byte(FuncIndexLog), OpEnd},
	)

	return &Module{
		Name: "sandbox",
		Imports: []Import{
			{Module: "env", Name: "log", Params: []byte{I32, I32}},
		},
		Funcs: []Func{
			{
				Export:  "multiply",
				Params:  []byte{I32, I32},
				Results: []byte{I32},
				Body:    []byte{OpLocalGet, 0, OpLocalGet, 1, OpI32Mul, OpEnd},
			},
			{
				Export: "log_action",
				Params: []byte{I32, I32},
				Locals: []byte{I32},
				Body:   logAction,
			},
			{
				// Bump allocator: p = heap; heap += size; return p
				Export:  "malloc",
				Params:  []byte{I32},
				Results: []byte{I32},
				Locals:  []byte{I32},
				Body: []byte{
					OpGlobalGet, 0,
					OpLocalTee, 1,
					OpLocalGet, 0,
					OpI32Add,
					OpGlobalSet, 0,
					OpLocalGet, 1,
					OpEnd,
				},
			},
			{
				Export: "free",
				Params: []byte{I32},
				Body:   []byte{OpEnd},
			},
		},
		MemoryMinPages: 16,
		HeapBase:       1024,
		Data:           []byte(action.Prefix),
	}
}

// Replace unexports the function currently exported as name, if any, and
// appends f exported under name. Indices of existing functions are unchanged.
func (m *Module) Replace(name string, f Func) *Module {
	m.Unexport(name)
	f.Export = name
	m.Funcs = append(m.Funcs, f)
	return m
}

// Unexport removes the export name, leaving its function in place.
func (m *Module) Unexport(name string) *Module {
	for i := range m.Funcs {
		if m.Funcs[i].Export == name {
			m.Funcs[i].Export = ""
		}
	}
	return m
}

// Encode returns the module in the WebAssembly binary format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-format%E2%91%A0
func (m *Module) Encode() []byte {
	bin := append(append([]byte{}, magic...), version...)
	bin = append(bin, m.encodeTypeSection()...)
	bin = append(bin, m.encodeImportSection()...)
	bin = append(bin, m.encodeFunctionSection()...)
	bin = append(bin, encodeSection(sectionIDMemory, append([]byte{1, 0x00}, leb128.EncodeUint32(m.MemoryMinPages)...))...)
	bin = append(bin, m.encodeGlobalSection()...)
	bin = append(bin, m.encodeExportSection()...)
	bin = append(bin, m.encodeCodeSection()...)
	bin = append(bin, m.encodeDataSection()...)
	bin = append(bin, m.encodeNameSection()...)
	return bin
}

// Build is shorthand for Sandbox().Encode().
func Build() []byte {
	return Sandbox().Encode()
}

// encodeTypeSection declares one type per import then one per function, so
// type indices line up with function indices.
func (m *Module) encodeTypeSection() []byte {
	contents := leb128.EncodeUint32(uint32(len(m.Imports) + len(m.Funcs)))
	for _, i := range m.Imports {
		contents = append(contents, encodeFunctionType(i.Params, i.Results)...)
	}
	for _, f := range m.Funcs {
		contents = append(contents, encodeFunctionType(f.Params, f.Results)...)
	}
	return encodeSection(sectionIDType, contents)
}

func (m *Module) encodeImportSection() []byte {
	contents := leb128.EncodeUint32(uint32(len(m.Imports)))
	for idx, i := range m.Imports {
		contents = append(contents, encodeSizePrefixed([]byte(i.Module))...)
		contents = append(contents, encodeSizePrefixed([]byte(i.Name))...)
		contents = append(contents, externTypeFunc)
		contents = append(contents, leb128.EncodeUint32(uint32(idx))...)
	}
	return encodeSection(sectionIDImport, contents)
}

func (m *Module) encodeFunctionSection() []byte {
	contents := leb128.EncodeUint32(uint32(len(m.Funcs)))
	for idx := range m.Funcs {
		contents = append(contents, leb128.EncodeUint32(uint32(len(m.Imports)+idx))...)
	}
	return encodeSection(sectionIDFunction, contents)
}

func (m *Module) encodeGlobalSection() []byte {
	contents := append([]byte{1, I32, 0x01}, I32Const(m.HeapBase)...)
	contents = append(contents, OpEnd)
	return encodeSection(sectionIDGlobal, contents)
}

func (m *Module) encodeExportSection() []byte {
	contents := encodeSizePrefixed([]byte("memory"))
	contents = append(contents, externTypeMemory, 0)
	count := uint32(1)
	for idx, f := range m.Funcs {
		if f.Export == "" {
			continue
		}
		count++
		contents = append(contents, encodeSizePrefixed([]byte(f.Export))...)
		contents = append(contents, externTypeFunc)
		contents = append(contents, leb128.EncodeUint32(uint32(len(m.Imports)+idx))...)
	}
	return encodeSection(sectionIDExport, append(leb128.EncodeUint32(count), contents...))
}

func (m *Module) encodeCodeSection() []byte {
	contents := leb128.EncodeUint32(uint32(len(m.Funcs)))
	for _, f := range m.Funcs {
		contents = append(contents, encodeCode(f.Locals, f.Body)...)
	}
	return encodeSection(sectionIDCode, contents)
}

func (m *Module) encodeDataSection() []byte {
	// one active segment for memory 0 at i32.const 0
	contents := []byte{1, 0x00, OpI32Const, 0, OpEnd}
	contents = append(contents, encodeSizePrefixed(m.Data)...)
	return encodeSection(sectionIDData, contents)
}

// encodeNameSection names the module, each import after its field name and
// each exported function after its export. Unexported functions are left
// unnamed.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#name-section%E2%91%A0
func (m *Module) encodeNameSection() []byte {
	var funcNames []byte
	var count uint32
	for idx, i := range m.Imports {
		funcNames = append(funcNames, encodeNameMapEntry(uint32(idx), i.Name)...)
		count++
	}
	for idx, f := range m.Funcs {
		if f.Export == "" {
			continue
		}
		funcNames = append(funcNames, encodeNameMapEntry(uint32(len(m.Imports)+idx), f.Export)...)
		count++
	}

	contents := encodeSizePrefixed([]byte("name"))
	if m.Name != "" {
		contents = append(contents, encodeSection(subsectionIDModuleName, encodeSizePrefixed([]byte(m.Name)))...)
	}
	if count > 0 {
		contents = append(contents, encodeSection(subsectionIDFunctionNames, append(leb128.EncodeUint32(count), funcNames...))...)
	}
	return encodeSection(sectionIDCustom, contents)
}

func encodeNameMapEntry(idx uint32, name string) []byte {
	return append(leb128.EncodeUint32(idx), encodeSizePrefixed([]byte(name))...)
}

// encodeCode groups runs of the same local type, as required by the code
// section.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#code-section%E2%91%A0
func encodeCode(locals, body []byte) []byte {
	var blocks []byte
	var blockCount uint32
	for i := 0; i < len(locals); {
		j := i
		for j < len(locals) && locals[j] == locals[i] {
			j++
		}
		blocks = append(blocks, leb128.EncodeUint32(uint32(j-i))...)
		blocks = append(blocks, locals[i])
		blockCount++
		i = j
	}
	code := append(leb128.EncodeUint32(blockCount), blocks...)
	code = append(code, body...)
	return encodeSizePrefixed(code)
}

func encodeFunctionType(params, results []byte) []byte {
	ret := []byte{0x60}
	ret = append(ret, encodeSizePrefixed(params)...)
	return append(ret, encodeSizePrefixed(results)...)
}

func encodeSection(sectionID byte, contents []byte) []byte {
	return append([]byte{sectionID}, encodeSizePrefixed(contents)...)
}

func encodeSizePrefixed(data []byte) []byte {
	size := leb128.EncodeUint32(uint32(len(data)))
	return append(size, data...)
}

// I32Const returns the instruction pushing v.
func I32Const(v int32) []byte {
	return append([]byte{OpI32Const}, leb128.EncodeInt32(v)...)
}

// Concat joins instruction sequences into one body.
func Concat(parts ...[]byte) []byte {
	var ret []byte
	for _, p := range parts {
		ret = append(ret, p...)
	}
	return ret
}

func memoryCopy() []byte {
	// destination and source memory index are both zero
	return []byte{OpMiscPrefix, miscMemoryCopy, 0, 0}
}
