package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// decodeFFmpeg asks ffprobe for the native rate and channel count, then has
// ffmpeg emit raw float32 at exactly that layout so nothing is resampled.
func (d *Decoder) decodeFFmpeg(ctx context.Context, path string) (*pcm, error) {
	if err := d.ffmpegAvailable(); err != nil {
		ext := strings.ToLower(filepath.Ext(path))
		return nil, fmt.Errorf("%w %q: %v", ErrUnsupportedFormat, ext, err)
	}

	meta, err := d.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	if meta.SampleRate <= 0 || meta.Channels <= 0 {
		return nil, fmt.Errorf("%w: ffprobe reported rate=%d channels=%d", ErrInvalidFile, meta.SampleRate, meta.Channels)
	}

	ctx, cancel := d.withDefaultTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(
		ctx,
		d.opts.FFmpegPath,
		"-hide_banner",
		"-v", "error",
		"-i", path,
		"-vn",
		"-map", "0:a:0",
		"-ac", strconv.Itoa(meta.Channels),
		"-ar", strconv.Itoa(meta.SampleRate),
		"-f", "f32le",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
	}

	return &pcm{
		samples:  float32LE(stdout.Bytes()),
		rate:     meta.SampleRate,
		channels: meta.Channels,
		format:   formatName(path, meta.Format),
	}, nil
}

func float32LE(raw []byte) []float64 {
	n := len(raw) / 4
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:])))
	}
	return out
}

func formatName(path, probed string) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); ext != "" {
		return ext
	}
	if probed != "" {
		return strings.SplitN(probed, ",", 2)[0]
	}
	return "unknown"
}
