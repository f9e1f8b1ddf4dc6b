package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the synth engine and its consumers.
const (
	// Default values for the audio host
	DefaultOutputDevice    = MinDeviceID // System default output device
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultLowLatency      = false       // Standard latency mode

	// Wavetable defaults
	DefaultTableSize = 2048
	DefaultNumMips   = 12

	// Keyboard notes from the terminal monitor have no key-up event
	DefaultNoteHold = 250 * time.Millisecond

	// Spectrum consumers
	DefaultFFTSize          = 2048
	DefaultFFTWindow        = "Hann"
	DefaultSpectrumInterval = 33 * time.Millisecond // ~30Hz
	DefaultSpectrumBands    = 32

	DefaultWebSocketAddress = ":8080"
	DefaultUDPTarget        = "127.0.0.1:9090"

	// Recording defaults
	DefaultOutputFile       = "" // Auto-generated filename
	DefaultBitDepth         = 16
	DefaultSilenceThreshold = 0.0 // Record everything

	DefaultLogLevel = "info"

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 4096   // Largest block the engine renders in one call
	MinTableSize    = 4
	MaxTableSize    = 1 << 16
	MaxNumMips      = 16
)

// Generated built-ins when the config names none.
var DefaultGenerate = []string{"sine", "saw", "square", "triangle"}

// Default returns the built-in configuration used as the base before a
// config file and environment overrides are applied.
func Default() Config {
	return Config{
		Debug:    false,
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			OutputDevice:    DefaultOutputDevice,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
		},
		Synth: SynthConfig{
			TableSize:    DefaultTableSize,
			NumMips:      DefaultNumMips,
			LanczosSigma: false,
			Generate:     append([]string(nil), DefaultGenerate...),
			NoteHold:     DefaultNoteHold,
		},
		Spectrum: SpectrumConfig{
			FFTSize:   DefaultFFTSize,
			FFTWindow: DefaultFFTWindow,
			Interval:  DefaultSpectrumInterval,
			Bands:     DefaultSpectrumBands,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddress: DefaultWebSocketAddress,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTarget,
		},
		Recording: RecordingConfig{
			Enabled:          false,
			OutputFile:       DefaultOutputFile,
			BitDepth:         DefaultBitDepth,
			SilenceThreshold: DefaultSilenceThreshold,
		},
	}
}
