// Package audiotest generates and writes synthetic clips for tests.
package audiotest

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/aiff"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// Tone returns a sine wave of the given frequency, amplitude 0.5.
func Tone(freq float64, sampleRate int, seconds float64) []float64 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// Chord sums several tones and rescales to amplitude 0.5.
func Chord(freqs []float64, sampleRate int, seconds float64) []float64 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float64, n)
	for _, f := range freqs {
		for i, v := range Tone(f, sampleRate, seconds) {
			out[i] += v
		}
	}
	if len(freqs) > 0 {
		for i := range out {
			out[i] /= float64(len(freqs))
		}
	}
	return out
}

// Noise returns uniform white noise in [-0.5, 0.5). A fixed seed gives a
// fixed clip.
func Noise(seed int64, sampleRate int, seconds float64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	n := int(float64(sampleRate) * seconds)
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64() - 0.5
	}
	return out
}

// Stretch resamples by linear interpolation so the result is factor times as
// long. Pitch moves with it.
func Stretch(samples []float64, factor float64) []float64 {
	if factor <= 0 || len(samples) == 0 {
		return nil
	}
	n := int(float64(len(samples)) * factor)
	out := make([]float64, n)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) / factor
		lo := int(pos)
		if lo >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(lo)
		out[i] = samples[lo]*(1-frac) + samples[lo+1]*frac
	}
	return out
}

// Interleave builds a multi-channel frame sequence from per-channel slices of
// equal length.
func Interleave(channels ...[]float64) []float64 {
	if len(channels) == 0 {
		return nil
	}
	n := len(channels[0])
	out := make([]float64, 0, n*len(channels))
	for i := 0; i < n; i++ {
		for _, ch := range channels {
			out = append(out, ch[i])
		}
	}
	return out
}

func toIntBuffer(samples []float64, sampleRate, channels, bitDepth int) *goaudio.IntBuffer {
	peak := float64(int(1)<<(bitDepth-1)) - 1
	data := make([]int, len(samples))
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		data[i] = int(math.Round(v * peak))
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
}

// WriteWAV writes interleaved samples as 16-bit PCM WAV.
func WriteWAV(path string, samples []float64, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	if err := enc.Write(toIntBuffer(samples, sampleRate, channels, 16)); err != nil {
		return fmt.Errorf("writing wav: %w", err)
	}
	return enc.Close()
}

// WriteAIFF writes interleaved samples as 16-bit AIFF.
func WriteAIFF(path string, samples []float64, sampleRate, channels int) error {
	return WriteAIFFDepth(path, samples, sampleRate, channels, 16)
}

// WriteAIFFDepth writes interleaved samples as AIFF at bitDepth (8, 16, 24
// or 32).
func WriteAIFFDepth(path string, samples []float64, sampleRate, channels, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := aiff.NewEncoder(f, sampleRate, bitDepth, channels)
	if err := enc.Write(toIntBuffer(samples, sampleRate, channels, bitDepth)); err != nil {
		return fmt.Errorf("writing aiff: %w", err)
	}
	return enc.Close()
}

const (
	flacBlockSize    = 4096
	flacMinBlockSize = 16
)

// WriteFLAC writes interleaved samples as 16-bit FLAC with verbatim
// subframes. assign is the frame channel assignment; for stereo it may be
// one of the decorrelated layouts (left/side, side/right, mid/side).
func WriteFLAC(path string, samples []float64, sampleRate, channels int, assign frame.Channels) error {
	if assign.Count() != channels {
		return fmt.Errorf("channel assignment %d carries %d channels, want %d", assign, assign.Count(), channels)
	}
	data := toIntBuffer(samples, sampleRate, channels, 16).Data
	frames := len(data) / channels
	if frames < flacMinBlockSize {
		return fmt.Errorf("flac needs at least %d frames, got %d", flacMinBlockSize, frames)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     uint8(channels),
		BitsPerSample: 16,
	}
	enc, err := flac.NewEncoder(f, info)
	if err != nil {
		return fmt.Errorf("creating flac encoder: %w", err)
	}

	for start := 0; start < frames; {
		n := min(flacBlockSize, frames-start)
		// A short tail would lower the stream's minimum block size below
		// what decoders accept; fold it into this block instead.
		if rest := frames - start - n; rest > 0 && rest < flacMinBlockSize {
			n += rest
		}

		subframes := make([]*frame.Subframe, channels)
		for c := range subframes {
			s := make([]int32, n)
			for i := range s {
				s[i] = int32(data[(start+i)*channels+c])
			}
			subframes[c] = &frame.Subframe{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   s,
				NSamples:  n,
			}
		}
		fr := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(n),
				SampleRate:        uint32(sampleRate),
				Channels:          assign,
				BitsPerSample:     16,
			},
			Subframes: subframes,
		}
		if err := enc.WriteFrame(fr); err != nil {
			return fmt.Errorf("writing flac frame: %w", err)
		}
		start += n
	}
	return enc.Close()
}

// WriteGarbage writes bytes that no decoder accepts.
func WriteGarbage(path string) error {
	return os.WriteFile(path, []byte("this is not audio at all, just text"), 0o644)
}
