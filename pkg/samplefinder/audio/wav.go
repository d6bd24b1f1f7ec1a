package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/aiff"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE

	// WAVEFORMATEXTENSIBLE: 16 base bytes, cbSize, valid bits, channel mask,
	// then the SubFormat GUID at offset 24.
	wavExtensibleSize   = 40
	wavSubFormatOffset  = 24
	riffHeaderSize      = 12
	riffChunkHeaderSize = 8
)

func decodeWAV(f *os.File) (*pcm, error) {
	tag, err := wavFormatTag(f)
	if err != nil {
		return nil, err
	}
	if tag != wavFormatPCM {
		return nil, fmt.Errorf("%w: wav audio format %#x (only integer PCM)", ErrUnsupportedFormat, tag)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrInvalidFile)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading wav samples: %w", err)
	}

	samples, err := intsToFloat64(buf.Data, int(dec.BitDepth), true)
	if err != nil {
		return nil, err
	}
	return &pcm{
		samples:  samples,
		rate:     int(dec.SampleRate),
		channels: int(dec.NumChans),
		format:   "wav",
	}, nil
}

// wavFormatTag walks the RIFF chunks up to "fmt " and returns the effective
// format tag. For WAVE_FORMAT_EXTENSIBLE that is the code carried in the
// first two bytes of the SubFormat GUID, so extensible float reads as 3.
func wavFormatTag(r io.ReadSeeker) (uint16, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	var hdr [riffHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil || string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return 0, fmt.Errorf("%w: not a RIFF/WAVE file", ErrInvalidFile)
	}

	for {
		var ch [riffChunkHeaderSize]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return 0, fmt.Errorf("%w: wav has no fmt chunk", ErrInvalidFile)
		}
		size := int64(binary.LittleEndian.Uint32(ch[4:]))
		if string(ch[0:4]) != "fmt " {
			// Chunks are padded to an even length.
			if _, err := r.Seek(size+size&1, io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("%w: %v", ErrInvalidFile, err)
			}
			continue
		}

		if size < 2 {
			return 0, fmt.Errorf("%w: wav fmt chunk is %d bytes", ErrInvalidFile, size)
		}
		body := make([]byte, min(size, wavExtensibleSize))
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, fmt.Errorf("%w: short wav fmt chunk", ErrInvalidFile)
		}
		tag := binary.LittleEndian.Uint16(body)
		if tag != wavFormatExtensible {
			return tag, nil
		}
		if len(body) < wavExtensibleSize {
			return 0, fmt.Errorf("%w: extensible wav fmt chunk is %d bytes", ErrInvalidFile, size)
		}
		return binary.LittleEndian.Uint16(body[wavSubFormatOffset:]), nil
	}
}

func decodeAIFF(f *os.File) (*pcm, error) {
	dec := aiff.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not an AIFF file", ErrInvalidFile)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading aiff samples: %w", err)
	}

	// go-audio/aiff returns 8-bit samples as raw bytes, but AIFF stores
	// them as two's complement.
	if dec.BitDepth == 8 {
		resign8(buf.Data)
	}

	samples, err := intsToFloat64(buf.Data, int(dec.BitDepth), false)
	if err != nil {
		return nil, err
	}
	return &pcm{
		samples:  samples,
		rate:     int(dec.SampleRate),
		channels: int(dec.NumChans),
		format:   "aiff",
	}, nil
}
