package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatTurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_turns_total",
		Help: "Chat turns handled, by intent and reply branch.",
	}, []string{"intent", "branch"})

	chatTurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_turn_duration_seconds",
		Help:    "Time to answer one chat turn.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	searchUnavailableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "candidate_search_unavailable_total",
		Help: "Searches that could not be served, by modality.",
	}, []string{"modality"})

	generativeFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "generative_fallbacks_total",
		Help: "Replies that fell back to the apology because generation failed.",
	})

	priceCorrectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_floor_corrections_total",
		Help: "Generated offers raised to the marginal price.",
	})

	sessionExpiriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_expiries_total",
		Help: "Sessions reset after reaching the message limit.",
	})

	liveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_sessions",
		Help: "Conversations currently held in memory.",
	})
)
