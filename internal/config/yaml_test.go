// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mitchellh/go-homedir"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Audio.SampleRate != DefaultSampleRate {
		t.Errorf("expected default sample rate %d, got %.0f", DefaultSampleRate, cfg.Audio.SampleRate)
	}
	if len(cfg.Synth.Generate) != len(DefaultGenerate) {
		t.Errorf("expected %d generated tables, got %v", len(DefaultGenerate), cfg.Synth.Generate)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
audio:
  sample_rate: 48000
  frames_per_buffer: 256
synth:
  table_size: 1024
  lanczos_sigma: true
  generate: [saw, sine]
  tables:
    - path: pads/warm.wvt
  params:
    master_vol: 0.8
    amp_release: 1.5
  note_hold: 400ms
spectrum:
  fft_window: blackman
  interval: 50ms
transport:
  udp_enabled: true
  udp_target_address: 10.0.0.2:9000
recording:
  bit_depth: 24
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Audio.SampleRate != 48000 || cfg.Audio.FramesPerBuffer != 256 {
		t.Errorf("audio section not applied: %+v", cfg.Audio)
	}
	// Unset keys keep their defaults.
	if cfg.Audio.OutputDevice != DefaultOutputDevice {
		t.Errorf("expected default output device, got %d", cfg.Audio.OutputDevice)
	}
	if cfg.Synth.TableSize != 1024 || !cfg.Synth.LanczosSigma || cfg.Synth.NumMips != DefaultNumMips {
		t.Errorf("synth section not applied: %+v", cfg.Synth)
	}
	if got := strings.Join(cfg.Synth.Generate, ","); got != "saw,sine" {
		t.Errorf("expected generate list saw,sine, got %s", got)
	}
	if cfg.Synth.Params["master_vol"] != 0.8 || cfg.Synth.Params["amp_release"] != 1.5 {
		t.Errorf("params not applied: %v", cfg.Synth.Params)
	}
	if cfg.Synth.NoteHold != 400*time.Millisecond {
		t.Errorf("expected note_hold 400ms, got %s", cfg.Synth.NoteHold)
	}
	if len(cfg.Synth.Tables) != 1 || cfg.Synth.Tables[0].TableName() != "warm" {
		t.Errorf("expected one table named warm, got %+v", cfg.Synth.Tables)
	}
	if cfg.Spectrum.Interval != 50*time.Millisecond || cfg.Spectrum.FFTSize != DefaultFFTSize {
		t.Errorf("spectrum section not applied: %+v", cfg.Spectrum)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.2:9000" {
		t.Errorf("transport section not applied: %+v", cfg.Transport)
	}
	if cfg.Recording.BitDepth != 24 {
		t.Errorf("expected bit depth 24, got %d", cfg.Recording.BitDepth)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_UDP_ENABLED", "1")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "192.168.1.5:7000")
	t.Setenv("ENV_SPECTRUM_INTERVAL", "100ms")
	t.Setenv("ENV_WS_ADDRESS", ":9999")
	t.Setenv("ENV_OUTPUT_DEVICE", "not-a-number")

	path := writeTempConfig(t, "debug: false\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !cfg.Debug {
		t.Error("expected ENV_DEBUG to override the file")
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "192.168.1.5:7000" {
		t.Errorf("UDP overrides not applied: %+v", cfg.Transport)
	}
	if cfg.Spectrum.Interval != 100*time.Millisecond {
		t.Errorf("expected interval 100ms, got %s", cfg.Spectrum.Interval)
	}
	if cfg.Transport.WebSocketAddress != ":9999" {
		t.Errorf("expected websocket address :9999, got %s", cfg.Transport.WebSocketAddress)
	}
	if cfg.Audio.OutputDevice != DefaultOutputDevice {
		t.Errorf("malformed ENV_OUTPUT_DEVICE should be ignored, got %d", cfg.Audio.OutputDevice)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"sample rate low", func(c *Config) { c.Audio.SampleRate = 4000 }, "audio.sample_rate"},
		{"sample rate high", func(c *Config) { c.Audio.SampleRate = 384000 }, "audio.sample_rate"},
		{"frames too large", func(c *Config) { c.Audio.FramesPerBuffer = MaxBufferFrames + 1 }, "audio.frames_per_buffer"},
		{"frames zero", func(c *Config) { c.Audio.FramesPerBuffer = 0 }, "audio.frames_per_buffer"},
		{"device below default", func(c *Config) { c.Audio.OutputDevice = -2 }, "audio.output_device"},
		{"table size not pow2", func(c *Config) { c.Synth.TableSize = 1000 }, "synth.table_size"},
		{"table size too small", func(c *Config) { c.Synth.TableSize = 2 }, "synth.table_size"},
		{"no mips", func(c *Config) { c.Synth.NumMips = 0 }, "synth.num_mips"},
		{"unknown kind", func(c *Config) { c.Synth.Generate = []string{"noise"} }, "synth.generate"},
		{"table without path", func(c *Config) { c.Synth.Tables = []TableSource{{Name: "x"}} }, "synth.tables[0].path"},
		{"table bad format", func(c *Config) { c.Synth.Tables = []TableSource{{Path: "x.mp3"}} }, "unsupported table format"},
		{"unknown param", func(c *Config) { c.Synth.Params = map[string]float32{"volume": 1} }, "synth.params"},
		{"negative hold", func(c *Config) { c.Synth.NoteHold = -time.Second }, "synth.note_hold"},
		{"fft size", func(c *Config) { c.Spectrum.FFTSize = 1000 }, "spectrum.fft_size"},
		{"window", func(c *Config) { c.Spectrum.FFTWindow = "kaiser" }, "spectrum.fft_window"},
		{"interval", func(c *Config) { c.Spectrum.Interval = 0 }, "spectrum.interval"},
		{"bands", func(c *Config) { c.Spectrum.Bands = 0 }, "spectrum.bands"},
		{"udp missing port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "missing port"},
		{"websocket address", func(c *Config) {
			c.Transport.WebSocketEnabled = true
			c.Transport.WebSocketAddress = ""
		}, "transport.websocket_address"},
		{"bit depth", func(c *Config) { c.Recording.BitDepth = 8 }, "recording.bit_depth"},
		{"silence threshold", func(c *Config) { c.Recording.SilenceThreshold = 2 }, "recording.silence_threshold"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestTableSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src      TableSource
		wantKind string
		wantName string
	}{
		{TableSource{Path: "tables/Pad.WVT"}, "wvt", "Pad"},
		{TableSource{Path: "cycle.wav", Name: "vox"}, "wav", "vox"},
		{TableSource{Path: "raw.bin", Format: "wvt1"}, "wvt", "raw"},
	}

	for _, tt := range tests {
		t.Run(tt.src.Path, func(t *testing.T) {
			kind, err := tt.src.Kind()
			if err != nil {
				t.Fatalf("Kind: %v", err)
			}
			if kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, kind)
			}
			if name := tt.src.TableName(); name != tt.wantName {
				t.Errorf("expected name %s, got %s", tt.wantName, name)
			}
		})
	}
}

func TestExpandPaths(t *testing.T) {
	t.Setenv("WTSYNTH_TABLES", "/srv/tables")
	home, err := homedir.Dir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	cfg := Default()
	cfg.LogFile = "~/wtsynth.log"
	cfg.Recording.OutputFile = "takes/one.wav"
	cfg.Synth.Tables = []TableSource{
		{Path: "$WTSYNTH_TABLES/pad.wvt"},
		{Name: "vox", Path: "~/samples/vox.wav"},
	}
	if err := cfg.ExpandPaths(); err != nil {
		t.Fatalf("ExpandPaths: %v", err)
	}

	if want := filepath.Join(home, "wtsynth.log"); cfg.LogFile != want {
		t.Errorf("LogFile = %q, want %q", cfg.LogFile, want)
	}
	if cfg.Recording.OutputFile != "takes/one.wav" {
		t.Errorf("relative path changed: %q", cfg.Recording.OutputFile)
	}
	want := []TableSource{
		{Path: "/srv/tables/pad.wvt"},
		{Name: "vox", Path: filepath.Join(home, "samples/vox.wav")},
	}
	if diff := cmp.Diff(want, cfg.Synth.Tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}

	loaded, err := LoadConfig(writeTempConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(&cfg, loaded); diff != "" {
		t.Errorf("empty file differs from defaults (-want +got):\n%s", diff)
	}
}
