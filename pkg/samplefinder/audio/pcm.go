package audio

import (
	"errors"
	"fmt"
)

// intsToFloat64 scales signed integer PCM of the given bit depth to [-1, 1].
// unsigned8 handles the offset-binary 8-bit samples used by WAV.
func intsToFloat64(data []int, bitDepth int, unsigned8 bool) ([]float64, error) {
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: bit depth %d", ErrInvalidFile, bitDepth)
	}
	scale := 1.0 / float64(uint64(1)<<uint(bitDepth-1))
	offset := 0
	if bitDepth == 8 && unsigned8 {
		offset = 128
	}

	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v-offset) * scale
	}
	return out, nil
}

// resign8 reinterprets raw 8-bit bytes (0..255) as two's complement in place.
func resign8(data []int) {
	for i, v := range data {
		data[i] = int(int8(uint8(v)))
	}
}

// reduceChannels turns interleaved samples into a single channel.
// A trailing partial frame is dropped.
func reduceChannels(interleaved []float64, channels int, mode ChannelMode) ([]float64, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrInvalidFile, channels)
	}
	if channels == 1 {
		return interleaved, nil
	}

	frames := len(interleaved) / channels
	out := make([]float64, frames)
	switch mode {
	case MixDown:
		inv := 1.0 / float64(channels)
		for i := 0; i < frames; i++ {
			sum := 0.0
			base := i * channels
			for c := 0; c < channels; c++ {
				sum += interleaved[base+c]
			}
			out[i] = sum * inv
		}
	case FirstChannel:
		for i := 0; i < frames; i++ {
			out[i] = interleaved[i*channels]
		}
	default:
		return nil, errors.New("unknown channel mode " + mode.String())
	}
	return out, nil
}

// ToMono reduces interleaved samples from another source, such as a browser
// AudioBuffer, to one channel with the same rules Decode applies.
func ToMono(interleaved []float64, channels int, mode ChannelMode) ([]float64, error) {
	mono, err := reduceChannels(interleaved, channels, mode)
	if err != nil {
		return nil, err
	}
	if len(mono) == 0 {
		return nil, ErrNoSamples
	}
	return mono, nil
}
