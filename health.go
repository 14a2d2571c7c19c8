package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Prometheus metrics
	etlRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_dw_etl_runs_total",
		Help: "Total number of pipeline runs started",
	})

	etlRunErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_dw_etl_run_errors_total",
		Help: "Total number of failed pipeline runs",
	})

	etlRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sales_dw_etl_run_duration_seconds",
		Help:    "Duration of pipeline runs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	recordsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_dw_etl_records_extracted_total",
		Help: "Total changed records extracted from the operational store",
	})

	recordsLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_dw_etl_records_loaded_total",
		Help: "Total fact rows loaded into the warehouse",
	})

	watermarkTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sales_dw_etl_watermark_timestamp_seconds",
		Help: "Unix timestamp of the watermark used by the latest run",
	})

	tablesLoadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_dw_etl_table_rows_loaded_total",
		Help: "Total rows written per warehouse table",
	}, []string{"table_name"})

	rowsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_dw_etl_rows_skipped_total",
		Help: "Rows skipped by row-level isolation per warehouse table",
	}, []string{"table_name"})
)

// HealthServer serves health probes and prometheus metrics
type HealthServer struct {
	pipeline  *Pipeline
	service   string
	startTime time.Time
}

// NewHealthServer creates a new health server
func NewHealthServer(pipeline *Pipeline, service string) *HealthServer {
	return &HealthServer{
		pipeline:  pipeline,
		service:   service,
		startTime: time.Now(),
	}
}

// Start starts the health and metrics HTTP server
func (h *HealthServer) Start(port string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/ready", h.handleReady)
	mux.HandleFunc("/live", h.handleLive)
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + port
	log.Printf("🏥 Health server listening on %s", addr)

	return http.ListenAndServe(addr, mux)
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":         "healthy",
		"service":        h.service,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"stats":          h.pipeline.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

func (h *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (h *HealthServer) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("alive"))
}
