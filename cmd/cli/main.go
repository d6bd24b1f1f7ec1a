package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/himanishpuri/SampleFinder/internal/config"
	"github.com/himanishpuri/SampleFinder/internal/render"
	"github.com/himanishpuri/SampleFinder/pkg/logger"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/audio"
)

// Global flags
var (
	configPath  string
	ffmpegPath  string
	ffprobePath string
	cacheSize   int
)

func init() {
	// Global flags go before the command name
	flag.StringVar(&configPath, "config", getEnvOrDefault("SAMPLEFINDER_CONFIG", ""), "Path to a YAML configuration file")
	flag.StringVar(&ffmpegPath, "ffmpeg", "", "ffmpeg binary (overrides config)")
	flag.StringVar(&ffprobePath, "ffprobe", "", "ffprobe binary (overrides config)")
	flag.IntVar(&cacheSize, "cache", -1, "Fingerprint cache entries, 0 disables (overrides config)")
	flag.Usage = printUsage
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig reads the config file, environment and global flags, in that
// order of increasing precedence.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if ffmpegPath != "" {
		cfg.Decoder.FFmpegPath = ffmpegPath
	}
	if ffprobePath != "" {
		cfg.Decoder.FFprobePath = ffprobePath
	}
	if cacheSize >= 0 {
		cfg.Cache.Size = cacheSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.Level())
	return cfg, nil
}

func mustConfig() *config.Config {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("❌ Invalid configuration: %v\n", err)
		logger.GetLogger().Errorf("Configuration failed: %v", err)
		os.Exit(1)
	}
	return cfg
}

// createFinder builds a finder from cfg; extra options are applied last.
func createFinder(cfg *config.Config, extra ...samplefinder.Option) *samplefinder.Finder {
	log := logger.GetLogger()
	opts := append(cfg.FinderOptions(log.Named("finder")), extra...)
	f, err := samplefinder.NewFinder(opts...)
	if err != nil {
		fmt.Printf("❌ Failed to create finder: %v\n", err)
		log.Errorf("Finder initialization failed: %v", err)
		os.Exit(1)
	}
	return f
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	log := logger.GetLogger()
	command := args[0]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "find":
		handleFind(args[1:])
	case "compare":
		handleCompare(args[1:])
	case "fingerprint":
		handleFingerprint(args[1:])
	case "probe":
		handleProbe(args[1:])
	case "spectrogram":
		handleSpectrogram(args[1:])
	case "extensions":
		handleExtensions()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// splitArgs separates leading positional arguments from the flags after them.
func splitArgs(args []string) (positional, flagArgs []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return positional, args[i:]
		}
		positional = append(positional, arg)
	}
	return positional, nil
}

// signalContext is canceled on Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func handleFind(args []string) {
	log := logger.GetLogger()

	positional, flagArgs := splitArgs(args)
	findCmd := flag.NewFlagSet("find", flag.ExitOnError)
	threshold := findCmd.Float64("threshold", -1, "Minimum similarity, 0..1")
	percent := findCmd.Float64("percent", -1, "Minimum similarity as a percentage, 0..100")
	workers := findCmd.Int("workers", 0, "Concurrent candidates (default: config or CPU count)")
	top := findCmd.Int("top", 10, "Number of matches to print, 0 for all")
	asJSON := findCmd.Bool("json", false, "Print matches as JSON")
	quiet := findCmd.Bool("quiet", false, "Hide the progress bar")
	findCmd.Parse(flagArgs)

	if len(positional) != 2 {
		fmt.Println("Usage: samplefinder find <query_file> <directory> [--threshold 0.25 | --percent 25] [--workers N] [--top N] [--json]")
		os.Exit(1)
	}
	queryPath, root := positional[0], positional[1]

	cfg := mustConfig()
	if *workers > 0 {
		cfg.Workers = *workers
	}

	th, err := cfg.ThresholdValue()
	switch {
	case *threshold >= 0 && *percent >= 0:
		fmt.Println("Error: use either --threshold or --percent, not both")
		os.Exit(1)
	case *threshold >= 0:
		th, err = samplefinder.NewThreshold(*threshold)
	case *percent >= 0:
		th, err = samplefinder.ThresholdFromPercent(*percent)
	}
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	finder := createFinder(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	if !*asJSON {
		fmt.Printf("\n🔍 Searching %s for samples like %s (threshold %s)\n", root, queryPath, th)
	}
	log.Infof("Scan: query=%s root=%s threshold=%s workers=%d", queryPath, root, th, cfg.Workers)

	start := time.Now()
	scan := finder.Start(ctx, queryPath, root, th)
	showBar := !*quiet && !*asJSON
	if showBar {
		drainWithProgress(scan)
	}
	matches, err := scan.Wait()
	if err != nil {
		fmt.Printf("\n❌ Scan stopped: %v\n", err)
		log.Errorf("Scan %s failed: %v", scan.ID, err)
		os.Exit(1)
	}
	log.Infof("Scan %s complete in %s: %d match(es)", scan.ID, time.Since(start).Round(time.Millisecond), len(matches))

	if *asJSON {
		printJSON(matches)
		return
	}

	if len(matches) == 0 {
		fmt.Println("\n📭 No matching samples found")
		return
	}

	fmt.Printf("\n✅ Found %d match(es)!\n\n", len(matches))
	shown := len(matches)
	if *top > 0 {
		shown = min(shown, *top)
	}
	for i, m := range matches[:shown] {
		fmt.Printf("%d. %s\n", i+1, m.Path)
		fmt.Printf("   Similarity: %.2f%% | Distance: %.4f\n", m.Similarity*100, m.Distance)
	}
	if len(matches) > shown {
		fmt.Printf("\n... and %d more matches\n", len(matches)-shown)
	}
}

// drainWithProgress renders scan events until the event channel closes.
// The bar is created on the first progress event, when the total is known.
func drainWithProgress(scan *samplefinder.Scan) {
	var (
		p   *mpb.Progress
		bar *mpb.Bar
		// read by the render goroutine
		eta atomic.Int64
	)
	eta.Store(-1)

	for ev := range scan.Events() {
		switch e := ev.(type) {
		case samplefinder.ProgressEvent:
			if bar == nil {
				p = mpb.New(mpb.WithWidth(48))
				bar = p.AddBar(int64(e.Total),
					mpb.PrependDecorators(
						decor.Name("Scanning: "),
						decor.CountersNoUnit("%d / %d"),
					),
					mpb.AppendDecorators(
						decor.Percentage(),
						decor.Any(func(decor.Statistics) string {
							if secs := eta.Load(); secs >= 0 {
								return fmt.Sprintf(" ETA: %ds", secs)
							}
							return " ETA: --"
						}),
					),
				)
			}
			bar.SetCurrent(int64(e.Processed))
		case samplefinder.EtaEvent:
			eta.Store(int64(e.Seconds()))
		}
	}

	if bar != nil {
		if !bar.Completed() {
			bar.Abort(false)
		}
		p.Wait()
	}
}

func handleCompare(args []string) {
	log := logger.GetLogger()

	if len(args) != 2 {
		fmt.Println("Usage: samplefinder compare <file_a> <file_b>")
		os.Exit(1)
	}

	finder := createFinder(mustConfig())
	ctx, cancel := signalContext()
	defer cancel()

	dist, err := finder.Compare(ctx, args[0], args[1])
	if err != nil {
		fmt.Printf("❌ Failed to compare: %v\n", err)
		log.Errorf("Compare failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\n🎵 %s\n   %s\n\n", args[0], args[1])
	fmt.Printf("   Distance:   %.4f\n", dist)
	fmt.Printf("   Similarity: %.2f%%\n", samplefinder.Similarity(dist)*100)
}

func handleFingerprint(args []string) {
	log := logger.GetLogger()

	positional, flagArgs := splitArgs(args)
	fpCmd := flag.NewFlagSet("fingerprint", flag.ExitOnError)
	asJSON := fpCmd.Bool("json", false, "Dump the full coefficient sequence as JSON")
	fpCmd.Parse(flagArgs)

	if len(positional) != 1 {
		fmt.Println("Usage: samplefinder fingerprint <audio_file> [--json]")
		os.Exit(1)
	}

	cfg := mustConfig()
	finder := createFinder(cfg)
	ctx, cancel := signalContext()
	defer cancel()

	seq, err := finder.Fingerprint(ctx, positional[0])
	if err != nil {
		fmt.Printf("❌ Failed to fingerprint: %v\n", err)
		log.Errorf("Fingerprint failed: %v", err)
		os.Exit(1)
	}

	if *asJSON {
		printJSON(seq)
		return
	}
	fmt.Printf("\n✅ %s\n", positional[0])
	fmt.Printf("   Frames:       %d\n", seq.Frames())
	fmt.Printf("   Coefficients: %d\n", seq.Dim())
	fmt.Printf("   Window/Hop:   %d/%d samples\n", cfg.Features.WindowSize, cfg.Features.HopSize)
}

func handleProbe(args []string) {
	log := logger.GetLogger()

	if len(args) != 1 {
		fmt.Println("Usage: samplefinder probe <audio_file>")
		os.Exit(1)
	}

	cfg := mustConfig()
	dec := audio.NewDecoder(cfg.DecoderOptions(log.Named("audio")))
	ctx, cancel := signalContext()
	defer cancel()

	meta, err := dec.Probe(ctx, args[0])
	if err != nil {
		fmt.Printf("❌ Failed to probe: %v\n", err)
		log.Errorf("Probe failed: %v", err)
		os.Exit(1)
	}
	printJSON(meta)
}

func handleSpectrogram(args []string) {
	log := logger.GetLogger()

	positional, flagArgs := splitArgs(args)
	specCmd := flag.NewFlagSet("spectrogram", flag.ExitOnError)
	def := render.DefaultOptions()
	width := specCmd.Int("width", def.Width, "Image width in pixels")
	height := specCmd.Int("height", def.Height, "Image height in pixels (frequency bins)")
	logScale := specCmd.Bool("log", false, "Logarithmic magnitude scale")
	specCmd.Parse(flagArgs)

	if len(positional) != 2 {
		fmt.Println("Usage: samplefinder spectrogram <audio_file> <out.png> [--width 2048] [--height 512] [--log]")
		os.Exit(1)
	}

	cfg := mustConfig()
	dec := audio.NewDecoder(cfg.DecoderOptions(log.Named("audio")))
	ctx, cancel := signalContext()
	defer cancel()

	buf, err := dec.Decode(ctx, positional[0])
	if err != nil {
		fmt.Printf("❌ Failed to decode: %v\n", err)
		log.Errorf("Decode failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Read %d samples at %d Hz\n", len(buf.Samples), buf.SampleRate)

	opts := render.Options{Width: *width, Height: *height, Log: *logScale}
	if err := render.SpectrogramPNG(buf.Samples, buf.SampleRate, positional[1], opts); err != nil {
		fmt.Printf("❌ Failed to render: %v\n", err)
		log.Errorf("Spectrogram failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Saved spectrogram to %s\n", positional[1])
}

func handleExtensions() {
	finder := createFinder(mustConfig())
	writeExtensions(os.Stdout, finder.Extensions())
}

// writeExtensions lists exts, marking those that only decode through ffmpeg.
func writeExtensions(w io.Writer, exts []string) {
	fmt.Fprintln(w, "Scanned extensions:")
	for _, ext := range exts {
		if audio.IsNative(ext) {
			fmt.Fprintf(w, "  %s\n", ext)
		} else {
			fmt.Fprintf(w, "  %s (ffmpeg)\n", ext)
		}
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode json: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("SampleFinder - find audio samples that sound like a query clip")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --config <path>    YAML configuration file (env: SAMPLEFINDER_CONFIG)")
	fmt.Println("  --ffmpeg <path>    ffmpeg binary (env: SAMPLEFINDER_FFMPEG, default: ffmpeg)")
	fmt.Println("  --ffprobe <path>   ffprobe binary (env: SAMPLEFINDER_FFPROBE, default: ffprobe)")
	fmt.Println("  --cache <n>        Fingerprint cache entries, 0 disables (env: SAMPLEFINDER_CACHE_SIZE)")
	fmt.Println("\nUsage:")
	fmt.Println("  samplefinder [global-options] find <query_file> <directory> [--threshold 0.25 | --percent 25] [--workers N] [--top N] [--json] [--quiet]")
	fmt.Println("  samplefinder [global-options] compare <file_a> <file_b>")
	fmt.Println("  samplefinder [global-options] fingerprint <audio_file> [--json]")
	fmt.Println("  samplefinder [global-options] probe <audio_file>")
	fmt.Println("  samplefinder [global-options] spectrogram <audio_file> <out.png> [--width N] [--height N] [--log]")
	fmt.Println("  samplefinder [global-options] extensions")
	fmt.Println("\nExamples:")
	fmt.Println("  # Find samples at least 40% similar to a loop")
	fmt.Println("  samplefinder find loop.wav ~/Samples --percent 40")
	fmt.Println()
	fmt.Println("  # Compare two files directly")
	fmt.Println("  samplefinder compare kick_a.wav kick_b.flac")
	fmt.Println()
	fmt.Println("  # Scan with a larger cache and a custom ffmpeg")
	fmt.Println("  samplefinder --cache 2048 --ffmpeg /opt/ffmpeg/bin/ffmpeg find query.m4a ./library")
}
