// Command binsimd runs the real-time binaural auralization engine: it loads
// its filters (a WAV filter list by default, or a filter database), opens an
// audio output stream, and listens for pose and
// playback control messages on a set of UDP sockets.
//
// Usage:
//
//	binsimd [options]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"

	"binsim-go/control"
	"binsim-go/dsp"
	"binsim-go/engine"
	"binsim-go/sound"
	"binsim-go/web"
)

func main() {
	blockSize := flag.Int("block-size", 256, "Processing block size in samples")
	dsSize := flag.Int("ds-filter-size", 512, "Direct sound filter length in samples")
	erSize := flag.Int("er-filter-size", 4096, "Early reflections filter length in samples")
	lrSize := flag.Int("lr-filter-size", 16384, "Late reverb filter length in samples")
	sdSize := flag.Int("sd-filter-size", 512, "Source directivity filter length in samples")
	hpSize := flag.Int("hp-filter-size", 1024, "Headphone filter length in samples")
	maxChannels := flag.Int("max-channels", 8, "Number of simultaneous sound sources")
	sampleRate := flag.Float64("sample-rate", 48000, "Audio sample rate in Hz")
	filterSource := flag.String("filter-source", "wav", "Filter source: \"wav\" (file list) or \"db\" (filter database)")
	filterList := flag.String("filter-list", "brirs/filter_list.txt", "Path to a WAV filter list file")
	filterDatabase := flag.String("filter-database", "", "Path to a filter database file")
	useHeadphoneFilter := flag.Bool("headphone-filter", false, "Apply a headphone equalization filter")
	crossfade := flag.Bool("crossfade", false, "Crossfade convolver output for one block after a filter change")
	loudness := flag.Float64("loudness", 1.0, "Initial loudness factor")
	loopSound := flag.Bool("loop-sound", true, "Loop the default playlist")
	recvIP := flag.String("recv-ip", "127.0.0.1", "Control listener bind address")
	recvPort := flag.Int("recv-port", 10000, "Control listener base UDP port (uses recv-port..recv-port+3)")
	defaultSounds := flag.String("sounds", "", "Comma-separated list of sound files for the default playlist")
	noTUI := flag.Bool("no-tui", false, "Disable interactive TUI")
	webPort := flag.Int("web-port", 8080, "Web monitoring server port")
	noWeb := flag.Bool("no-web", false, "Disable web monitoring server")
	noBrowser := flag.Bool("no-browser", false, "Don't auto-open browser")
	logFile := flag.String("log", "binsimd.log", "Log file path")
	showHelp := flag.Bool("help", false, "Show this help message")

	flag.Parse()

	if *showHelp {
		//nolint:forbidigo // CLI help output requires fmt.Println
		fmt.Println("binsimd: real-time binaural auralization engine")
		//nolint:forbidigo // CLI help output requires fmt.Println
		fmt.Println("Usage: binsimd [options]")
		//nolint:forbidigo // CLI help output requires fmt.Println
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	file, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		//nolint:forbidigo // error output before logging is initialized
		fmt.Printf("Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	logger := slog.New(slog.NewTextHandler(file, nil))
	slog.SetDefault(logger)
	slog.Info("Starting binsimd", "args", os.Args)

	cfg := engine.NewConfig()
	cfg.BlockSize = *blockSize
	cfg.DSFilterSize = *dsSize
	cfg.EarlyFilterSize = *erSize
	cfg.LateFilterSize = *lrSize
	cfg.DirectivityFilterSize = *sdSize
	cfg.HeadphoneFilterSize = *hpSize
	cfg.MaxChannels = *maxChannels
	cfg.SampleRate = *sampleRate
	cfg.FilterSource = *filterSource
	cfg.FilterList = *filterList
	cfg.FilterDatabase = *filterDatabase
	cfg.UseHeadphoneFilter = *useHeadphoneFilter
	cfg.EnableCrossfading = *crossfade
	cfg.RecvIP = *recvIP
	cfg.RecvPort = *recvPort
	cfg.SetLoudnessFactor(float32(*loudness))
	cfg.SetLoopSound(*loopSound)

	storage, err := dsp.NewFilterStorage(cfg.BlockSize, dsp.StageSizes{
		DS: cfg.DSFilterSize, ER: cfg.EarlyFilterSize, LR: cfg.LateFilterSize,
		SD: cfg.DirectivityFilterSize, HP: cfg.HeadphoneFilterSize,
	}, cfg.SampleRate, logger)
	if err != nil {
		slog.Error("Failed to create filter storage", "error", err)
		os.Exit(1)
	}

	switch cfg.FilterSource {
	case "db":
		if cfg.FilterDatabase == "" {
			slog.Error("filter-source=db requires -filter-database")
			os.Exit(1)
		}
		if err := storage.LoadFromDatabase(cfg.FilterDatabase); err != nil {
			slog.Error("Failed to load filter database", "path", cfg.FilterDatabase, "error", err)
			os.Exit(1)
		}
	case "mat":
		slog.Error("Unsupported filter source", "error", fmt.Errorf("%w: unsupported filter source: mat", engine.ErrConfigParse))
		os.Exit(1)
	default:
		if err := storage.LoadFromFileList(cfg.FilterList); err != nil {
			slog.Error("Failed to load filter list", "path", cfg.FilterList, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Filter storage loaded", "source", cfg.FilterSource)

	handler := sound.NewHandler(cfg.MaxChannels, cfg.BlockSize, cfg.SampleRate, logger)
	if *defaultSounds != "" {
		handler.CreatePlayer(control.ConfigSoundfilePlayerName, splitCommaList(*defaultSounds), 0, loopState(cfg.LoopSound()), sound.Playing, 1.0)
	}

	dsSlots := control.NewStageSlots()
	erSlots := control.NewStageSlots()
	lrSlots := control.NewStageSlots()
	sdSlots := control.NewSourceStageSlots()

	eng, err := engine.New(cfg, storage, handler, dsSlots, erSlots, lrSlots, sdSlots, logger)
	if err != nil {
		slog.Error("Failed to build engine", "error", err)
		os.Exit(1)
	}

	receiver := control.NewReceiver(dsSlots, erSlots, lrSlots, sdSlots, cfg, handler, logger)
	ctx, cancel := context.WithCancel(context.Background())
	if err := receiver.Listen(ctx, cfg.RecvIP, cfg.RecvPort); err != nil {
		slog.Error("Failed to start control receiver", "error", err)
		cancel()
		os.Exit(1)
	}
	slog.Info("Control receiver listening", "ip", cfg.RecvIP, "basePort", cfg.RecvPort)

	if err := portaudio.Initialize(); err != nil {
		slog.Error("Failed to initialize PortAudio", "error", err)
		cancel()
		os.Exit(1)
	}
	defer portaudio.Terminate()

	callback := func(out []float32) {
		frameCount := len(out) / 2
		if err := eng.Process(out, frameCount, engine.DriverStatusOK); err != nil {
			slog.Error("Engine processing failed", "error", err)
		}
	}

	stream, err := portaudio.OpenDefaultStream(0, 2, cfg.SampleRate, cfg.BlockSize, callback)
	if err != nil {
		slog.Error("Failed to open audio stream", "error", err)
		cancel()
		os.Exit(1)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		slog.Error("Failed to start audio stream", "error", err)
		cancel()
		os.Exit(1)
	}
	slog.Info("Audio stream started", "sampleRate", cfg.SampleRate, "blockSize", cfg.BlockSize)

	var webServer *web.Server
	if !*noWeb {
		webServer = web.NewServer(eng, *webPort)
		go func() {
			slog.Info("Starting web server", "port", *webPort)
			if err := webServer.Start(); err != nil {
				slog.Error("Web server error", "error", err)
			}
		}()
		if !*noBrowser {
			time.Sleep(200 * time.Millisecond)
			go func() {
				url := fmt.Sprintf("http://localhost:%d", *webPort)
				if err := web.OpenBrowser(url); err != nil {
					slog.Error("Failed to open browser", "error", err)
				}
			}()
		}
		//nolint:forbidigo // startup message
		fmt.Printf("Web UI available at http://localhost:%d\n", *webPort)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if *noTUI {
		//nolint:forbidigo // headless mode startup message
		fmt.Println("binsimd running. Press Ctrl+C to exit.")
		<-sigCh
	} else {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-sigCh:
			case <-ctx.Done():
			}
		}()

		runTUI(eng)
		wg.Wait()
	}

	slog.Info("Shutting down")
	cancel()
	_ = stream.Stop()
	_ = receiver.Close()

	if webServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Web server shutdown error", "error", err)
		}
	}
	slog.Info("Shutdown complete")
}

func splitCommaList(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func loopState(loop bool) sound.LoopState {
	if loop {
		return sound.Loop
	}
	return sound.Single
}
