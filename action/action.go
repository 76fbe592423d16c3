// Package action holds the behavior behind the two guest exports, log_action
// and multiply, independent of how a host calls into them.
//
// Both guest builds (wasip1 and js) delegate here, so the host tests and the
// guests agree on a single definition.
package action

import (
	"fmt"
	"math"
)

// Template is the fixed message template log_action formats its text into.
const Template = "Logged Action: %s"

// Prefix is the part of Template preceding the text.
const Prefix = "Logged Action: "

// Format embeds text verbatim into Template. Formatting verbs inside text are
// not interpreted.
func Format(text string) string {
	return fmt.Sprintf(Template, text)
}

// Multiply returns a*b with 32-bit two's-complement wraparound. For example,
// Multiply(math.MaxInt32, 2) is -2.
//
// Overflow is not checked: this matches i32.mul in WebAssembly.
func Multiply(a, b int32) int32 {
	return a * b
}

// ToInt32 converts a JavaScript number to int32 the way wasm-bindgen does for
// an i32 parameter: truncate, then wrap modulo 2^32. NaN and infinities
// become zero.
func ToInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Mod(math.Trunc(f), 1<<32)
	if f < 0 {
		f += 1 << 32
	}
	return int32(uint32(f))
}
