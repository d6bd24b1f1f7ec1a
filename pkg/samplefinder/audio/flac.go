package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
)

// flacMaxPrealloc bounds the up-front buffer. NSamples comes from the
// header and may be absent or corrupt; the slice grows by frame past it.
const flacMaxPrealloc = 1 << 22

func decodeFLAC(f *os.File) (*pcm, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	info := stream.Info
	channels := int(info.NChannels)
	bps := int(info.BitsPerSample)
	if channels <= 0 || bps <= 0 || bps > 32 {
		return nil, fmt.Errorf("%w: flac stream info channels=%d bits=%d", ErrInvalidFile, channels, bps)
	}
	scale := 1.0 / float64(uint64(1)<<uint(bps-1))

	samples := make([]float64, 0, min(info.NSamples*uint64(channels), flacMaxPrealloc))
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading flac frame: %w", err)
		}
		if len(frame.Subframes) < channels {
			return nil, fmt.Errorf("%w: flac frame has %d subframes, want %d", ErrInvalidFile, len(frame.Subframes), channels)
		}
		n := len(frame.Subframes[0].Samples)
		for c := 1; c < channels; c++ {
			if len(frame.Subframes[c].Samples) != n {
				return nil, fmt.Errorf("%w: flac subframe %d has %d samples, want %d", ErrInvalidFile, c, len(frame.Subframes[c].Samples), n)
			}
		}
		for i := 0; i < n; i++ {
			for c := 0; c < channels; c++ {
				samples = append(samples, float64(frame.Subframes[c].Samples[i])*scale)
			}
		}
	}

	return &pcm{
		samples:  samples,
		rate:     int(info.SampleRate),
		channels: channels,
		format:   "flac",
	}, nil
}
