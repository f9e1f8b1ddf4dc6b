package transport

import (
	applog "wtsynth/internal/log"
)

// LoggingTransport implements the Transport interface by logging a summary
// of each frame at debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	switch v := data.(type) {
	case *SpectrumFrame:
		peakBin, peak := 0, float32(0)
		for i, m := range v.Magnitudes {
			if m > peak {
				peakBin, peak = i, m
			}
		}
		applog.Debugf("LOG_TRANSPORT: Frame %d: %d bins, peak %.2f at %.1f Hz, %d voices",
			v.Sequence, len(v.Magnitudes), peak, float64(peakBin)*v.BinHz, v.Voices)
	default:
		applog.Debugf("LOG_TRANSPORT: Received (%T): %+v", data, data)
	}
	return nil // Logging transport never fails to "send"
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
