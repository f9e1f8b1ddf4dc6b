package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wtsynth/internal/config"
	"wtsynth/pkg/build"
)

// Commands selected by ParseArgs. Play runs the synth; the rest are
// one-off commands that exit when done.
const (
	CommandPlay   = "play"
	CommandList   = "list"
	CommandGen    = "gen"
	CommandRender = "render"
)

// Options is the parsed command line: the command to run, the merged
// configuration and the command's own arguments.
type Options struct {
	Command  string
	Config   *config.Config
	Pick     bool // Choose the output device interactively before playing
	Headless bool // Play without the terminal monitor

	GenDir string
	Render RenderOptions
}

// RenderOptions configures the offline render command.
type RenderOptions struct {
	Output   string
	Notes    []int
	Velocity float32
	Hold     time.Duration
	Duration time.Duration
	Table    string
}

// flagValues holds the raw flag values. They override the loaded config
// only when set on the command line.
type flagValues struct {
	configPath      string
	deviceID        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	record          bool
	outputFile      string
	bitDepth        int
	verbose         bool
	logLevel        string
	logFile         string
	websocket       string
	udp             string

	notes    string
	velocity float64
	hold     time.Duration
	duration time.Duration
	table    string
}

// ParseArgs parses args (without the program name) and loads the
// configuration. It returns nil options when cobra handled the call
// itself, e.g. for --help or --version.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var f flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Polyphonic wavetable synthesizer with live spectrum output",
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			options.Config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandPlay
			return nil
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandList
		},
	}
	rootCmd.AddCommand(listCmd)

	// Gen command
	genCmd := &cobra.Command{
		Use:   "gen [dir]",
		Short: "Write the built-in wavetables as WVT1 files",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandGen
			options.GenDir = "."
			if len(args) == 1 {
				options.GenDir = args[0]
			}
		},
	}
	rootCmd.AddCommand(genCmd)

	// Render command
	renderCmd := &cobra.Command{
		Use:   "render <file.wav>",
		Short: "Render notes offline to a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := ParseNotes(f.notes)
			if err != nil {
				return err
			}
			if f.velocity < 0 || f.velocity > 1 {
				return fmt.Errorf("--velocity must be between 0 and 1, got %g", f.velocity)
			}
			if f.hold < 0 || f.duration <= 0 {
				return fmt.Errorf("--hold must not be negative and --duration must be positive")
			}
			options.Command = CommandRender
			options.Render = RenderOptions{
				Output:   args[0],
				Notes:    notes,
				Velocity: float32(f.velocity),
				Hold:     f.hold,
				Duration: f.duration,
				Table:    f.table,
			}
			return nil
		},
	}
	renderCmd.Flags().StringVarP(&f.notes, "notes", "n", "60,64,67",
		"Comma-separated MIDI notes played together")
	renderCmd.Flags().Float64Var(&f.velocity, "velocity", 0.8,
		"Note velocity (0..1)")
	renderCmd.Flags().DurationVar(&f.hold, "hold", time.Second,
		"Time before note-off")
	renderCmd.Flags().DurationVar(&f.duration, "duration", 2*time.Second,
		"Length of the rendered file, including the release tail")
	renderCmd.Flags().StringVar(&f.table, "table", "",
		"Wavetable for oscillator 1 (default: first loaded)")
	rootCmd.AddCommand(renderCmd)

	// Configuration file
	rootCmd.PersistentFlags().StringVarP(&f.configPath, "config", "C", "",
		"Path to config.yaml (default: ./config.yaml, then the user config directory)")

	// Audio Device Configuration
	rootCmd.PersistentFlags().IntVarP(&f.deviceID, "device", "d", config.DefaultOutputDevice,
		"Specify output device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentFlags().Float64VarP(&f.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&f.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	rootCmd.PersistentFlags().BoolVarP(&f.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")
	rootCmd.Flags().BoolVarP(&options.Pick, "pick", "p", false,
		"Choose the output device and sample rate interactively")
	rootCmd.Flags().BoolVar(&options.Headless, "headless", false,
		"Run without the terminal monitor until interrupted")

	// Recording Configuration
	rootCmd.PersistentFlags().BoolVarP(&f.record, "record", "r", false,
		"Record the output stream to a WAV file")
	rootCmd.PersistentFlags().StringVarP(&f.outputFile, "output", "o", config.DefaultOutputFile,
		"Output file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")
	rootCmd.PersistentFlags().IntVar(&f.bitDepth, "bit-depth", config.DefaultBitDepth,
		"Bit depth of recorded and rendered files (16, 24 or 32)")

	// Transports
	rootCmd.PersistentFlags().StringVarP(&f.websocket, "websocket", "w", "",
		"Serve the spectrum and control API on this address (e.g. :8080)")
	rootCmd.PersistentFlags().StringVarP(&f.udp, "udp", "u", "",
		"Send spectrum packets to this UDP address (e.g. 127.0.0.1:9090)")

	// Debug Configuration
	rootCmd.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false,
		"Show verbose output")
	rootCmd.PersistentFlags().StringVar(&f.logLevel, "log-level", config.DefaultLogLevel,
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&f.logFile, "log-file", "",
		"Write logs to this file")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if options.Command == "" {
		return nil, nil
	}

	return options, nil
}

// loadConfig loads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, f *flagValues) (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Audio.OutputDevice = f.deviceID
	}
	if flags.Changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if flags.Changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if flags.Changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if flags.Changed("record") {
		cfg.Recording.Enabled = f.record
	}
	if flags.Changed("output") {
		cfg.Recording.OutputFile = f.outputFile
	}
	if flags.Changed("bit-depth") {
		cfg.Recording.BitDepth = f.bitDepth
	}
	if flags.Changed("websocket") {
		cfg.Transport.WebSocketEnabled = f.websocket != ""
		cfg.Transport.WebSocketAddress = f.websocket
	}
	if flags.Changed("udp") {
		cfg.Transport.UDPEnabled = f.udp != ""
		cfg.Transport.UDPTargetAddress = f.udp
	}
	if flags.Changed("verbose") {
		cfg.Debug = f.verbose
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = f.logFile
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// ParseNotes parses a comma-separated list of MIDI notes.
func ParseNotes(s string) ([]int, error) {
	var notes []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil || n < 0 || n > 127 {
			return nil, fmt.Errorf("note '%s' is not a MIDI note (0..127)", field)
		}
		notes = append(notes, n)
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("no notes given")
	}
	return notes, nil
}
