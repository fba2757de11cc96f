/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registerGamesGauge sync.Once

func registerMetrics(cfg *Config, mux *httprouter.Router, gm *GameManager) {
	registerGamesGauge.Do(func() {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "snapcards_games",
				Help: "Games currently held by the server",
			},
			func() float64 { return float64(gm.games()) },
		))
	})

	mux.Handler("GET", cfg.prefix+"/metrics", promhttp.Handler())
}
