//go:build js && wasm

// Command js is the sandbox guest for JavaScript hosts such as a browser
// extension. It registers log_action and multiply as globals:
//
//	GOOS=js GOARCH=wasm go build -o sandbox.wasm ./guest/js
package main

import (
	"syscall/js"

	"github.com/mcpdemo/wasmsandbox/action"
)

func main() {
	js.Global().Set("log_action", js.FuncOf(logAction))
	js.Global().Set("multiply", js.FuncOf(multiply))

	// Prevent exit, or the functions above are released.
	select {}
}

// logAction writes its first argument to console.log under action.Template.
func logAction(_ js.Value, args []js.Value) any {
	var text string
	if len(args) > 0 && !args[0].IsUndefined() && !args[0].IsNull() {
		text = args[0].String()
	}
	js.Global().Get("console").Call("log", action.Format(text))
	return nil
}

// multiply truncates both arguments to int32, the way a wasm-bindgen i32
// parameter would, and returns their wrapped product.
func multiply(_ js.Value, args []js.Value) any {
	return action.Multiply(toInt32(args, 0), toInt32(args, 1))
}

func toInt32(args []js.Value, i int) int32 {
	if i >= len(args) || args[i].Type() != js.TypeNumber {
		return 0
	}
	return action.ToInt32(args[i].Float())
}
