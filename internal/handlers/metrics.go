package handlers

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/copilot-metrics/internal/services"
	"gorm.io/gorm"
)

var startTime = time.Now()

type MetricsHandler struct {
	db    *gorm.DB
	store *services.CredentialStore
	stats *services.FetchStats
}

func NewMetricsHandler(db *gorm.DB, store *services.CredentialStore, stats *services.FetchStats) *MetricsHandler {
	return &MetricsHandler{db: db, store: store, stats: stats}
}

// Metrics returns Prometheus-compatible text format metrics.
func (h *MetricsHandler) Metrics(c *gin.Context) {
	var b strings.Builder

	// -- Runtime metrics --
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeGauge(&b, "copilot_metrics_uptime_seconds", "Time since server start in seconds", time.Since(startTime).Seconds())
	writeGauge(&b, "copilot_metrics_goroutines", "Number of active goroutines", float64(runtime.NumGoroutine()))
	writeGauge(&b, "copilot_metrics_memory_alloc_bytes", "Current heap allocation in bytes", float64(m.Alloc))
	writeGauge(&b, "copilot_metrics_memory_sys_bytes", "Total memory obtained from OS in bytes", float64(m.Sys))
	writeGauge(&b, "copilot_metrics_gc_runs_total", "Total number of GC runs", float64(m.NumGC))

	// -- Database metrics --
	if h.db != nil {
		if sqlDB, err := h.db.DB(); err == nil {
			stats := sqlDB.Stats()
			writeGauge(&b, "copilot_metrics_db_open_connections", "Number of open DB connections", float64(stats.OpenConnections))
			writeGauge(&b, "copilot_metrics_db_in_use_connections", "Number of in-use DB connections", float64(stats.InUse))
		}
	}

	// -- Proxy metrics --
	configured := 0.0
	if h.store.Status().HasToken {
		configured = 1.0
	}
	writeGauge(&b, "copilot_metrics_credential_configured", "Whether a GitHub credential is stored (1=yes, 0=no)", configured)

	counts := h.stats.Snapshot()
	b.WriteString("# HELP copilot_metrics_upstream_fetches_total Metrics proxy calls by outcome\n")
	b.WriteString("# TYPE copilot_metrics_upstream_fetches_total counter\n")
	for _, outcome := range services.Outcomes() {
		fmt.Fprintf(&b, "copilot_metrics_upstream_fetches_total{outcome=%q} %d\n", outcome, counts[outcome])
	}
	b.WriteString("\n")

	c.Data(200, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %g\n\n", name, value)
}
