/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapcards_sessions_started_total",
			Help: "Rounds started, by category",
		},
		[]string{"category"},
	)
	SessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapcards_sessions_ended_total",
			Help: "Rounds ended, by reason (timeout or exit)",
		},
		[]string{"reason"},
	)
	SessionStartsRefused = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapcards_session_starts_refused_total",
			Help: "Round starts refused, by reason",
		},
		[]string{"reason"},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapcards_active_sessions",
			Help: "Rounds currently running",
		},
	)
	Taps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapcards_taps_total",
			Help: "Taps received, by effect",
		},
		[]string{"effect"},
	)
	ImageLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapcards_image_prefetch_total",
			Help: "Background image loads, by result",
		},
		[]string{"result"},
	)
	ImageLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapcards_image_lookups_total",
			Help: "Image cache lookups at render time, by result",
		},
		[]string{"result"},
	)
	PlaybackFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapcards_playback_failures_total",
			Help: "Audio operations that failed, by source",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(SessionsStarted)
	prometheus.MustRegister(SessionsEnded)
	prometheus.MustRegister(SessionStartsRefused)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(Taps)
	prometheus.MustRegister(ImageLoads)
	prometheus.MustRegister(ImageLookups)
	prometheus.MustRegister(PlaybackFailures)
}
