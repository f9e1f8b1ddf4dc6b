// SPDX-License-Identifier: MIT
// Package metrics registers the synth's Prometheus instruments. Served on
// /metrics by the transport server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveVoices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wtsynth_active_voices",
		Help: "Number of voices currently sounding",
	})
	TablesLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wtsynth_wavetables_loaded",
		Help: "Number of wavetables published to the registry",
	})
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wtsynth_websocket_clients",
		Help: "Number of connected spectrum WebSocket clients",
	})
)

// Counters
var (
	CallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wtsynth_audio_callbacks_total",
		Help: "Total audio output callbacks served",
	})
	BlockOverflowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wtsynth_block_overflows_total",
		Help: "Render calls rejected for exceeding the maximum block size",
	})
	NotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wtsynth_notes_total",
		Help: "Note events by kind",
	}, []string{"event"})
	RecordingDroppedBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wtsynth_recording_dropped_blocks_total",
		Help: "Audio blocks dropped because the recorder fell behind",
	})
	SpectrumFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wtsynth_spectrum_frames_total",
		Help: "Spectrum frames published by transport",
	}, []string{"transport"})
	SpectrumSendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wtsynth_spectrum_send_errors_total",
		Help: "Spectrum frames that failed to send by transport",
	}, []string{"transport"})
)

// Histograms
var (
	RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wtsynth_render_duration_us",
		Help:    "Time spent rendering one audio block in microseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})
)
