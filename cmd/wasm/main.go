//go:build js && wasm

package main

import (
	"fmt"
	"syscall/js"
)

var cmp *comparer

// readClip copies a JS Array or Float32Array/Float64Array into a clip.
func readClip(name string, data, rate, channels js.Value) (clip, error) {
	if data.Type() != js.TypeObject {
		return clip{}, fmt.Errorf("%s must be an Array or typed array", name)
	}
	if rate.Type() != js.TypeNumber || channels.Type() != js.TypeNumber {
		return clip{}, fmt.Errorf("%s: sampleRate and channels must be numbers", name)
	}

	length := data.Length()
	samples := make([]float64, length)
	for i := 0; i < length; i++ {
		val := data.Index(i)
		if val.Type() != js.TypeNumber {
			return clip{}, fmt.Errorf("%s element %d is not a number", name, i)
		}
		samples[i] = val.Float()
	}
	return clip{samples: samples, sampleRate: rate.Int(), channels: channels.Int()}, nil
}

// Compares two PCM clips.
// Returns: {error: number, data: {distance, similarity} | string}
func sampleFinderCompare(this js.Value, args []js.Value) any {
	if len(args) < 6 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 6 arguments: a, rateA, channelsA, b, rateB, channelsB")
	}

	a, err := readClip("a", args[0], args[1], args[2])
	if err != nil {
		return makeErrorResponse(ErrorInvalidArgs, err.Error())
	}
	b, err := readClip("b", args[3], args[4], args[5])
	if err != nil {
		return makeErrorResponse(ErrorInvalidArgs, err.Error())
	}

	res, code, err := cmp.compare(a, b)
	if err != nil {
		return makeErrorResponse(code, err.Error())
	}

	data := js.Global().Get("Object").New()
	data.Set("distance", res.Distance)
	data.Set("similarity", res.Similarity)

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", data)
	return result
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	logf := func(method, msg string) {
		if !console.IsUndefined() {
			console.Call(method, msg)
		}
	}

	var err error
	if cmp, err = newComparer(); err != nil {
		logf("error", "❌ SampleFinder WASM init failed: "+err.Error())
		return
	}

	done := make(chan struct{})
	js.Global().Set("sampleFinderCompare", js.FuncOf(sampleFinderCompare))
	logf("log", "📝 sampleFinderCompare function registered")

	window := js.Global().Get("window")
	if !window.IsUndefined() {
		event := js.Global().Get("CustomEvent").New("wasmReady", js.Global().Get("Object").New())
		window.Call("dispatchEvent", event)
		logf("log", "✅ wasmReady event dispatched")
	} else {
		logf("error", "❌ window object is undefined!")
	}

	<-done
}
