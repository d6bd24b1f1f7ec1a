// Package audio decodes audio files into mono float64 sample buffers at their
// native sample rate.
//
// WAV, AIFF, MP3 and FLAC are decoded in-process. M4A and anything else goes
// through ffmpeg, which is also used as a fallback when a native decoder
// rejects a file.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidFile       = errors.New("invalid or corrupt audio file")
	ErrNoSamples         = errors.New("no audio samples decoded")
	ErrFFmpegUnavailable = errors.New("ffmpeg not available")
)

// DecodeError reports a file that could not be turned into samples.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ChannelMode selects how multi-channel audio is reduced to one channel.
type ChannelMode int

const (
	// MixDown averages all channels.
	MixDown ChannelMode = iota
	// FirstChannel keeps only the first (left) channel.
	FirstChannel
)

func (m ChannelMode) String() string {
	switch m {
	case MixDown:
		return "mix"
	case FirstChannel:
		return "first"
	default:
		return fmt.Sprintf("ChannelMode(%d)", int(m))
	}
}

// ParseChannelMode accepts "mix" (or "") and "first".
func ParseChannelMode(s string) (ChannelMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mix", "mixdown", "mono":
		return MixDown, nil
	case "first", "left":
		return FirstChannel, nil
	default:
		return MixDown, fmt.Errorf("unknown channel mode %q", s)
	}
}

// Buffer is a decoded, single-channel clip. Samples are in [-1, 1].
type Buffer struct {
	Samples    []float64
	SampleRate int
	// Channels is the channel count of the decoded stream before reduction.
	// MP3 always reports 2: go-mp3 duplicates mono sources into both
	// channels, which leaves MixDown and FirstChannel output identical.
	Channels int
	Format   string
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// Logger is the subset of pkg/logger used here.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

type Options struct {
	ChannelMode ChannelMode
	FFmpegPath  string
	FFprobePath string
	// FFmpegFallback retries with ffmpeg when a native decoder fails.
	FFmpegFallback bool
	// Timeout bounds each ffmpeg/ffprobe run when the context has no deadline.
	Timeout time.Duration
	Logger  Logger
}

func DefaultOptions() Options {
	return Options{
		ChannelMode:    MixDown,
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		FFmpegFallback: true,
		Timeout:        2 * time.Minute,
	}
}

// pcm is interleaved, normalised sample data straight out of a codec.
type pcm struct {
	samples  []float64
	rate     int
	channels int
	format   string
}

type nativeFunc func(f *os.File) (*pcm, error)

var nativeDecoders = map[string]nativeFunc{
	".wav":  decodeWAV,
	".wave": decodeWAV,
	".aif":  decodeAIFF,
	".aiff": decodeAIFF,
	".mp3":  decodeMP3,
	".flac": decodeFLAC,
}

// Decoder is safe for concurrent use.
type Decoder struct {
	opts Options

	lookOnce  sync.Once
	ffmpegErr error
}

func NewDecoder(opts Options) *Decoder {
	def := DefaultOptions()
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = def.FFmpegPath
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = def.FFprobePath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	return &Decoder{opts: opts}
}

// Options returns the effective decoder options.
func (d *Decoder) Options() Options { return d.opts }

// Decode reads path and returns a mono buffer at the file's own sample rate.
// Every failure is a *DecodeError.
func (d *Decoder) Decode(ctx context.Context, path string) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	ext := strings.ToLower(filepath.Ext(path))
	native, ok := nativeDecoders[ext]

	var p *pcm
	var err error
	if ok {
		p, err = decodeFile(path, native)
		if err != nil && d.opts.FFmpegFallback && d.ffmpegAvailable() == nil {
			d.opts.Logger.Debugf("native %s decode failed for %s (%v), retrying with ffmpeg", ext, path, err)
			if fp, ferr := d.decodeFFmpeg(ctx, path); ferr == nil {
				p, err = fp, nil
			} else {
				err = fmt.Errorf("%w (ffmpeg fallback: %v)", err, ferr)
			}
		}
	} else {
		p, err = d.decodeFFmpeg(ctx, path)
	}
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	mono, err := reduceChannels(p.samples, p.channels, d.opts.ChannelMode)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if len(mono) == 0 {
		return nil, &DecodeError{Path: path, Err: ErrNoSamples}
	}
	if p.rate <= 0 {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("%w: sample rate %d", ErrInvalidFile, p.rate)}
	}

	return &Buffer{
		Samples:    mono,
		SampleRate: p.rate,
		Channels:   p.channels,
		Format:     p.format,
	}, nil
}

func decodeFile(path string, fn nativeFunc) (*pcm, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return fn(f)
}

func (d *Decoder) ffmpegAvailable() error {
	d.lookOnce.Do(func() {
		if _, err := exec.LookPath(d.opts.FFmpegPath); err != nil {
			d.ffmpegErr = fmt.Errorf("%w: %v", ErrFFmpegUnavailable, err)
			return
		}
		if _, err := exec.LookPath(d.opts.FFprobePath); err != nil {
			d.ffmpegErr = fmt.Errorf("%w: ffprobe: %v", ErrFFmpegUnavailable, err)
		}
	})
	return d.ffmpegErr
}

// withDefaultTimeout applies the decoder timeout when ctx has no deadline.
func (d *Decoder) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.opts.Timeout)
}

// NativeExtensions lists, sorted, the extensions decoded without ffmpeg.
func NativeExtensions() []string {
	exts := make([]string, 0, len(nativeDecoders))
	for ext := range nativeDecoders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// IsNative reports whether files with extension ext decode without ffmpeg.
func IsNative(ext string) bool {
	_, ok := nativeDecoders[strings.ToLower(ext)]
	return ok
}
