// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"wtsynth/internal/analysis"
	applog "wtsynth/internal/log"
	"wtsynth/internal/synth"
	"wtsynth/internal/wavetable"
	"wtsynth/pkg/bitint"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (verbose logging).
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	LogFile   string          `yaml:"log_file"`  // Log destination while the terminal monitor owns the screen.
	Audio     AudioConfig     `yaml:"audio"`     // Output stream settings.
	Synth     SynthConfig     `yaml:"synth"`     // Wavetables and initial parameters.
	Spectrum  SpectrumConfig  `yaml:"spectrum"`  // Spectrum analysis for the monitor and transports.
	Transport TransportConfig `yaml:"transport"` // Spectrum transports (WebSocket, UDP).
	Recording RecordingConfig `yaml:"recording"` // Recording of the rendered output.
}

// AudioConfig holds settings related to the audio output stream.
type AudioConfig struct {
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index for output (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per callback; must not exceed MaxBufferFrames.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
}

// TableSource names a wavetable file loaded at startup.
type TableSource struct {
	Name   string `yaml:"name"`             // Registry name; defaults to the file name without extension.
	Path   string `yaml:"path"`             // WVT1 or WAV file.
	Format string `yaml:"format,omitempty"` // "wvt" or "wav"; inferred from the extension when empty.
}

// SynthConfig holds settings for the wavetable store and the engine.
type SynthConfig struct {
	TableSize    int                `yaml:"table_size"`    // Base size of generated and imported tables.
	NumMips      int                `yaml:"num_mips"`      // Mip levels per table.
	LanczosSigma bool               `yaml:"lanczos_sigma"` // Apply sigma approximation to generated tables.
	Generate     []string           `yaml:"generate"`      // Built-in kinds generated at startup, in ID order.
	Tables       []TableSource      `yaml:"tables"`        // Files loaded after the built-ins.
	Params       map[string]float32 `yaml:"params"`        // Initial parameter values by name (e.g., "master_vol").
	NoteHold     time.Duration      `yaml:"note_hold"`     // Sustain time for keyboard notes without key-up.
}

// SpectrumConfig holds settings for the spectrum consumers.
type SpectrumConfig struct {
	FFTSize   int           `yaml:"fft_size"`   // Transform size; power of two.
	FFTWindow string        `yaml:"fft_window"` // Name of the window function (e.g., "Hann", "Hamming").
	Interval  time.Duration `yaml:"interval"`   // Interval between published frames.
	Bands     int           `yaml:"bands"`      // Log-spaced bands shown by the monitor.
}

// TransportConfig holds settings related to sending spectrum frames over the network.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`  // Serve /ws, /healthz, /metrics and the control API.
	WebSocketAddress string `yaml:"websocket_address"`  // Listen address (e.g., ":8080").
	UDPEnabled       bool   `yaml:"udp_enabled"`        // Enable sending spectrum frames over UDP.
	UDPTargetAddress string `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	LogFrames        bool   `yaml:"log_frames"`         // Log a summary of every published frame at debug level.
}

// RecordingConfig holds settings related to recording the rendered output.
type RecordingConfig struct {
	Enabled          bool    `yaml:"enabled"`           // Record the output stream to a WAV file.
	OutputFile       string  `yaml:"output_file"`       // Output path; generated from the time when empty.
	BitDepth         int     `yaml:"bit_depth"`         // 16, 24 or 32.
	SilenceThreshold float64 `yaml:"silence_threshold"` // Blocks with a peak below this are not written (0 records everything).
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		// Define potential locations for the config file.
		candidates := []string{
			"config.yaml",
		}
		if dir, err := os.UserConfigDir(); err == nil {
			candidates = append(candidates, filepath.Join(dir, "wtsynth", "config.yaml"))
		}
		found := false
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				found = true
				break
			}
		}
		if !found {
			cfg.applyEnvOverrides()
			if err := cfg.ExpandPaths(); err != nil {
				return nil, err
			}
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return &cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applog.Debugf("Config: Loaded %s", path)

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()
	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks ranges and names. Flags applied after loading must be
// validated again by the caller.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok && c.LogLevel != "" {
		return fmt.Errorf("log_level '%s' is not one of debug, info, warn, error", c.LogLevel)
	}

	// Audio Validation
	if c.Audio.OutputDevice < MinDeviceID {
		return fmt.Errorf("audio.output_device must be >= %d, got %d", MinDeviceID, c.Audio.OutputDevice)
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate must be between %d and %d, got %.0f",
			MinSampleRate, MaxSampleRate, c.Audio.SampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer must be between 1 and %d, got %d",
			MaxBufferFrames, c.Audio.FramesPerBuffer)
	}

	// Synth Validation
	if c.Synth.TableSize < MinTableSize || c.Synth.TableSize > MaxTableSize || !bitint.IsPowerOfTwo(c.Synth.TableSize) {
		return fmt.Errorf("synth.table_size must be a power of two between %d and %d, got %d",
			MinTableSize, MaxTableSize, c.Synth.TableSize)
	}
	if c.Synth.NumMips < 1 || c.Synth.NumMips > MaxNumMips {
		return fmt.Errorf("synth.num_mips must be between 1 and %d, got %d", MaxNumMips, c.Synth.NumMips)
	}
	for _, name := range c.Synth.Generate {
		if _, err := wavetable.ParseKind(name); err != nil {
			return fmt.Errorf("synth.generate: %w", err)
		}
	}
	for i, src := range c.Synth.Tables {
		if src.Path == "" {
			return fmt.Errorf("synth.tables[%d].path must be set", i)
		}
		if _, err := src.Kind(); err != nil {
			return fmt.Errorf("synth.tables[%d]: %w", i, err)
		}
	}
	for name, value := range c.Synth.Params {
		if _, err := synth.ParseParamID(name); err != nil {
			return fmt.Errorf("synth.params: %w", err)
		}
		if math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
			return fmt.Errorf("synth.params.%s must be finite", name)
		}
	}
	if c.Synth.NoteHold < 0 {
		return fmt.Errorf("synth.note_hold must not be negative, got %s", c.Synth.NoteHold)
	}

	// Spectrum Validation
	if c.Spectrum.FFTSize < 2 || !bitint.IsPowerOfTwo(c.Spectrum.FFTSize) {
		return fmt.Errorf("spectrum.fft_size must be a power of two >= 2, got %d (nearest valid: %d)",
			c.Spectrum.FFTSize, max(2, bitint.NextPowerOfTwo(c.Spectrum.FFTSize)))
	}
	if _, err := analysis.ParseWindowFunc(c.Spectrum.FFTWindow); err != nil {
		return fmt.Errorf("spectrum.fft_window: %w", err)
	}
	if c.Spectrum.Interval <= 0 {
		return fmt.Errorf("spectrum.interval must be positive, got %s", c.Spectrum.Interval)
	}
	if c.Spectrum.Bands < 1 {
		return fmt.Errorf("spectrum.bands must be positive, got %d", c.Spectrum.Bands)
	}

	// Transport Validation
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddress == "" {
		return fmt.Errorf("transport.websocket_address must be set when the WebSocket server is enabled")
	}
	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
	}

	// Recording Validation
	switch c.Recording.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth)
	}
	if c.Recording.SilenceThreshold < 0 || c.Recording.SilenceThreshold > 1 {
		return fmt.Errorf("recording.silence_threshold must be between 0 and 1, got %f", c.Recording.SilenceThreshold)
	}

	return nil
}

// Kind resolves the file format of a table source.
func (s TableSource) Kind() (string, error) {
	format := strings.ToLower(s.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(s.Path)), ".")
	}
	switch format {
	case "wvt", "wvt1":
		return "wvt", nil
	case "wav", "wave":
		return "wav", nil
	default:
		return "", fmt.Errorf("unsupported table format '%s' for %s", format, s.Path)
	}
}

// TableName returns the registry name for a table source.
func (s TableSource) TableName() string {
	if s.Name != "" {
		return s.Name
	}
	base := filepath.Base(s.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ExpandPaths expands a leading ~ and environment variables in every file
// path of the configuration.
func (c *Config) ExpandPaths() error {
	var err error
	if c.LogFile, err = expandPath(c.LogFile); err != nil {
		return fmt.Errorf("log_file: %w", err)
	}
	if c.Recording.OutputFile, err = expandPath(c.Recording.OutputFile); err != nil {
		return fmt.Errorf("recording.output_file: %w", err)
	}
	for i := range c.Synth.Tables {
		if c.Synth.Tables[i].Path, err = expandPath(c.Synth.Tables[i].Path); err != nil {
			return fmt.Errorf("synth.tables[%d].path: %w", i, err)
		}
	}
	return nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}
	return os.ExpandEnv(p), nil
}

// applyEnvOverrides lets ENV_* variables override file values. Malformed
// values are ignored with a warning.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Infof("Config: Overriding debug from env: %v", bVal)
		} else {
			applog.Warnf("Config: Ignoring ENV_DEBUG=%q: %v", val, err)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Infof("Config: Overriding log_level from env: %s", val)
	}
	// ENV_OUTPUT_DEVICE
	if val, ok := os.LookupEnv("ENV_OUTPUT_DEVICE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			cfg.Audio.OutputDevice = iVal
			applog.Infof("Config: Overriding audio.output_device from env: %d", iVal)
		} else {
			applog.Warnf("Config: Ignoring ENV_OUTPUT_DEVICE=%q: %v", val, err)
		}
	}

	// ENV_WS_{...} and ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_WS_ENABLED
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.WebSocketEnabled = bVal
			applog.Infof("Config: Overriding transport.websocket_enabled from env: %v", bVal)
		}
	}
	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		cfg.Transport.WebSocketAddress = val
		applog.Infof("Config: Overriding transport.websocket_address from env: %s", val)
	}
	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Infof("Config: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Infof("Config: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_SPECTRUM_INTERVAL
	if val, ok := os.LookupEnv("ENV_SPECTRUM_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Spectrum.Interval = dur
			applog.Infof("Config: Overriding spectrum.interval from env: %s", dur)
		}
	}
}
