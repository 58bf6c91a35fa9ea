package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Ticks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audioface_ticks_total",
			Help: "Total number of animation ticks",
		},
	)

	FramesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audioface_frames_applied_total",
			Help: "Total number of frames written to morph targets",
		},
		[]string{"source"},
	)

	RemoteChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audioface_remote_chunks_total",
			Help: "Recorded chunks by outcome",
		},
		[]string{"result"},
	)

	SubmissionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audioface_remote_submission_seconds",
			Help:    "Remote inference round trip in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	SessionActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audioface_session_active",
			Help: "1 while an animation session is active",
		},
	)

	Speaking = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audioface_speaking",
			Help: "1 while the voice activity detector reports speech",
		},
	)

	RegistryMeshes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audioface_registry_meshes",
			Help: "Meshes in the current morph target registry",
		},
	)
)
