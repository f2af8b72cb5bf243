package reindex

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/starford/notegraph/internal/models"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notegraph_reindex_runs_total",
		Help: "Reindex batches by mode and outcome",
	}, []string{"mode", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notegraph_reindex_duration_seconds",
		Help:    "Wall time of a reindex batch",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"mode"})

	notesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notegraph_reindex_notes_total",
		Help: "Notes visited by committed batches, by outcome",
	}, []string{"outcome"})

	linksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notegraph_reindex_links_total",
		Help: "Edge mutations committed by reindex batches",
	}, []string{"op"})
)

func observe(res resultCounters, mode, status string, seconds float64) {
	runsTotal.WithLabelValues(mode, status).Inc()
	runDuration.WithLabelValues(mode).Observe(seconds)
	if status != models.RunSuccess {
		return
	}
	notesTotal.WithLabelValues("indexed").Add(float64(res.indexed))
	notesTotal.WithLabelValues("skipped").Add(float64(res.skipped))
	linksTotal.WithLabelValues("inserted").Add(float64(res.inserted))
	linksTotal.WithLabelValues("deleted").Add(float64(res.deleted))
	linksTotal.WithLabelValues("retargeted").Add(float64(res.retargeted))
}
