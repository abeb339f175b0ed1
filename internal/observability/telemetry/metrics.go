package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	ActiveCallSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "propvoice_active_call_sessions",
		Help: "Number of live call sessions",
	})

	ConversationTurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propvoice_conversation_turns_total",
		Help: "Total conversation turns processed",
	}, []string{"outcome"})

	SiteVisitsBookedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propvoice_site_visits_booked_total",
		Help: "Total site visits booked across all calls",
	})

	BargeInsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propvoice_barge_ins_total",
		Help: "Total caller interruptions of agent speech",
	})

	TurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "propvoice_turn_latency_seconds",
		Help:    "Latency from final transcript to reply synthesis start",
		Buckets: prometheus.DefBuckets,
	})

	// Infrastructure metrics
	TTSSegmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propvoice_tts_segments_total",
		Help: "Total TTS segment requests",
	}, []string{"status"})

	ChatCompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propvoice_chat_completions_total",
		Help: "Total chat completion calls",
	}, []string{"model", "status"})

	StorageLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "propvoice_storage_latency_seconds",
		Help:    "Latency of enquiry store operations",
		Buckets: prometheus.DefBuckets,
	})
)
