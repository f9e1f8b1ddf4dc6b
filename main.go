package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"wtsynth/cmd"
	"wtsynth/internal/analysis"
	"wtsynth/internal/audio"
	"wtsynth/internal/config"
	applog "wtsynth/internal/log"
	"wtsynth/internal/metrics"
	"wtsynth/internal/synth"
	"wtsynth/internal/transport"
	"wtsynth/internal/transport/udp"
	"wtsynth/internal/tui"
	"wtsynth/internal/wavetable"
	"wtsynth/pkg/build"
)

const shutdownTimeout = 5 * time.Second

// main is the entry point for the synthesizer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load the configuration
//   - Execute one-off commands if requested
//   - Build the wavetables, the engine and the spectrum analyzer
//
// 2. Concurrent Phase (Hot Path):
//   - Start the output stream
//   - Start recording if enabled
//   - Run the spectrum transports and the terminal monitor
//
// 3. Shutdown Phase (Cold Path):
//   - Stop on quit or termination signal
//   - Finalize the recording
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds carry no ldflags and keep the defaults.
	buildErr := build.Initialize()

	// One thread for the audio callback, the rest for UI, transports
	// and the recording writer.
	runtime.GOMAXPROCS(min(runtime.NumCPU(), 4))

	options, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if options == nil {
		return // --help or --version
	}

	cfg := options.Config
	applog.Configure(cfg.LogLevel, cfg.Debug)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			applog.Fatalf("%v", err)
		}
		defer f.Close()
		applog.SetOutput(f)
	}
	if buildErr != nil {
		applog.Debugf("Build: %v, using development build info", buildErr)
	}
	applog.Debugf("Build: %s", build.GetBuildFlags())

	switch options.Command {
	case cmd.CommandList:
		err = listDevices()
	case cmd.CommandGen:
		err = generateTables(cfg, options.GenDir)
	case cmd.CommandRender:
		err = renderOffline(cfg, options.Render)
	default:
		err = play(cfg, options)
	}
	if err != nil {
		applog.Fatalf("%v", err)
	}
}

// listDevices prints the host's audio devices.
func listDevices() error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	return audio.ListDevices(os.Stdout)
}

// generateTables writes each configured built-in as <dir>/<name>.wvt.
func generateTables(cfg *config.Config, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tables := newManager(cfg)
	ids, err := generateBuiltins(tables, cfg)
	if err != nil {
		return err
	}
	for i, id := range ids {
		path := filepath.Join(dir, cfg.Synth.Generate[i]+".wvt")
		if err := tables.SaveFile(path, id); err != nil {
			return err
		}
		fmt.Println(path)
	}
	return nil
}

// renderOffline plays a chord through a fresh engine into a WAV file.
func renderOffline(cfg *config.Config, r cmd.RenderOptions) error {
	tables, err := buildTables(cfg)
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, tables)
	if err != nil {
		return err
	}
	if r.Table != "" {
		id, ok := tables.ID(r.Table)
		if !ok {
			return fmt.Errorf("unknown table '%s' (loaded: %s)", r.Table, strings.Join(tables.Names(), ", "))
		}
		engine.SetParam(synth.Osc1Type, float32(id))
	}

	f, err := os.Create(r.Output)
	if err != nil {
		return err
	}
	defer f.Close()

	events := audio.Chord(r.Notes, r.Velocity, r.Hold)
	frames, err := audio.RenderOffline(engine, events, r.Duration, cfg.Audio.FramesPerBuffer, cfg.Recording.BitDepth, f)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	applog.Infof("Render: Wrote %d frames (%s) to %s", frames, r.Duration, r.Output)
	return nil
}

// play runs the synth on the output device until the monitor quits or a
// termination signal arrives.
func play(cfg *config.Config, options *cmd.Options) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	if options.Pick {
		sel, ok, err := tui.PickDevice()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cfg.Audio.OutputDevice = sel.DeviceID
		cfg.Audio.SampleRate = sel.SampleRate
	}

	tables, err := buildTables(cfg)
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, tables)
	if err != nil {
		return err
	}
	window, err := analysis.ParseWindowFunc(cfg.Spectrum.FFTWindow)
	if err != nil {
		return err
	}
	analyzer, err := analysis.NewSpectrumAnalyzer(engine.Ring(), cfg.Spectrum.FFTSize, cfg.Audio.SampleRate, window)
	if err != nil {
		return err
	}

	player, err := audio.NewPlayer(engine, cfg.Audio)
	if err != nil {
		return err
	}

	pump, server, err := newPump(cfg, analyzer, player)
	if err != nil {
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// CRITICAL: Start of real-time audio processing
	if err := player.Start(); err != nil {
		return err
	}

	if cfg.Recording.Enabled {
		gate := audio.NewGate(cfg.Recording.SilenceThreshold)
		if err := player.StartRecording(cfg.Recording.OutputFile, cfg.Recording.BitDepth, gate); err != nil {
			player.Close()
			return err
		}
		applog.Infof("Recording: Writing to %s", player.Recording().Path())
	}

	g, ctx := errgroup.WithContext(ctx)
	if pump.Len() > 0 {
		g.Go(func() error { return pump.Run(ctx) })
	}
	if server != nil {
		g.Go(server.ListenAndServe)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		// Leaving the monitor ends the session.
		defer stop()
		if options.Headless {
			applog.Infof("Headless mode, press Ctrl+C to stop")
			<-ctx.Done()
			return nil
		}
		return runMonitor(ctx, cfg, player, analyzer, tables)
	})
	runErr := g.Wait()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	var path string
	if rec := player.Recording(); rec != nil {
		path = rec.Path()
	}
	if err := player.Close(); err != nil {
		applog.Errorf("Error closing player: %v", err)
	}
	if path != "" {
		fmt.Printf("Recording saved to: %s\n", path)
	}
	if err := pump.Close(); err != nil {
		applog.Warnf("Error closing transports: %v", err)
	}
	if n := player.Overflows(); n > 0 {
		applog.Warnf("Audio: %d oversized callback blocks were silenced", n)
	}

	return runErr
}

// runMonitor runs the terminal monitor. Without a log file, logging is
// silenced while it owns the screen.
func runMonitor(ctx context.Context, cfg *config.Config, player *audio.Player,
	spectrum analysis.SpectrumProvider, tables *wavetable.Manager) error {
	if cfg.LogFile == "" {
		applog.SetOutput(io.Discard)
		defer applog.SetOutput(os.Stderr)
	}

	return tui.RunMonitor(ctx, player, spectrum, tui.MonitorOptions{
		Interval: cfg.Spectrum.Interval,
		Hold:     cfg.Synth.NoteHold,
		Bands:    cfg.Spectrum.Bands,
		Tables:   tables.Names(),
	})
}

// newPump wires the configured spectrum transports. server is nil when the
// WebSocket server is disabled.
func newPump(cfg *config.Config, spectrum analysis.SpectrumProvider, player *audio.Player) (*transport.Pump, *transport.WebSocketServer, error) {
	pump, err := transport.NewPump(spectrum, cfg.Spectrum.Interval, analysis.DefaultBands)
	if err != nil {
		return nil, nil, err
	}
	pump.SetVoiceCounter(player.ActiveVoices)

	var server *transport.WebSocketServer
	if cfg.Transport.WebSocketEnabled {
		server = transport.NewWebSocketServer(cfg.Transport.WebSocketAddress, player)
		pump.Add("websocket", server)
	}
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			pump.Close()
			return nil, nil, err
		}
		publisher, err := udp.NewPublisher(sender)
		if err != nil {
			sender.Close()
			pump.Close()
			return nil, nil, err
		}
		pump.Add("udp", publisher)
	}
	if cfg.Transport.LogFrames {
		pump.Add("log", transport.NewLoggingTransport())
	}
	return pump, server, nil
}

func newManager(cfg *config.Config) *wavetable.Manager {
	return wavetable.NewManager(cfg.Audio.SampleRate,
		wavetable.WithMips(cfg.Synth.NumMips),
		wavetable.WithSigma(cfg.Synth.LanczosSigma),
	)
}

// generateBuiltins generates cfg.Synth.Generate in order.
func generateBuiltins(tables *wavetable.Manager, cfg *config.Config) ([]wavetable.ID, error) {
	ids := make([]wavetable.ID, 0, len(cfg.Synth.Generate))
	for _, name := range cfg.Synth.Generate {
		kind, err := wavetable.ParseKind(name)
		if err != nil {
			return nil, err
		}
		id, err := tables.Generate(kind, cfg.Synth.TableSize)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s table: %w", name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// buildTables generates the built-ins, then loads the configured files.
// Table IDs follow that order.
func buildTables(cfg *config.Config) (*wavetable.Manager, error) {
	tables := newManager(cfg)
	if _, err := generateBuiltins(tables, cfg); err != nil {
		return nil, err
	}

	for _, src := range cfg.Synth.Tables {
		format, err := src.Kind()
		if err != nil {
			return nil, err
		}
		name := src.TableName()
		switch format {
		case "wav":
			_, err = tables.LoadWAV(name, src.Path, cfg.Synth.TableSize)
		default:
			_, err = tables.Load(name, src.Path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load table '%s': %w", name, err)
		}
	}

	metrics.TablesLoaded.Set(float64(tables.Len()))
	applog.Infof("Wavetables: %d loaded (%s)", tables.Len(), strings.Join(tables.Names(), ", "))
	return tables, nil
}

// newEngine creates the engine and applies the configured parameters.
func newEngine(cfg *config.Config, tables *wavetable.Manager) (*synth.Engine, error) {
	engine, err := synth.New(cfg.Audio.SampleRate, tables)
	if err != nil {
		return nil, err
	}
	for name, value := range cfg.Synth.Params {
		id, err := synth.ParseParamID(name)
		if err != nil {
			return nil, err
		}
		engine.SetParam(id, value)
	}
	return engine, nil
}
