// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	DetectCycles       prometheus.Counter
	DetectFailures     prometheus.Counter
	UpstreamFailures   *prometheus.CounterVec
	SyntheticFallbacks prometheus.Counter
	NewMomentsTotal    prometheus.Counter

	// Histograms (seconds)
	DetectDuration prometheus.Observer

	// Gauges
	MomentsGauge       prometheus.Gauge
	MonitorActiveGauge prometheus.Gauge // 1=active,0=idle
	SyntheticModeGauge prometheus.Gauge // 1=last batch synthetic
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		DetectCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "clipradar_detect_cycles_total", Help: "Number of detection cycles run"})
		DetectFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "clipradar_detect_failures_total", Help: "Number of detection cycles that ended in error"})
		UpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clipradar_upstream_failures_total", Help: "Upstream source failures by source and class"}, []string{"source", "class"})
		SyntheticFallbacks = promauto.NewCounter(prometheus.CounterOpts{Name: "clipradar_synthetic_fallbacks_total", Help: "Cycles that fell back to synthetic data"})
		NewMomentsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "clipradar_new_moments_total", Help: "Newly detected moments across polls"})
		DetectDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clipradar_detect_duration_seconds", Help: "Detection cycle duration seconds", Buckets: prometheus.DefBuckets})
		MomentsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "clipradar_moments", Help: "Moments in the current result set"})
		MonitorActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "clipradar_monitor_active", Help: "Monitoring loop active=1 idle=0"})
		SyntheticModeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "clipradar_synthetic_mode", Help: "Last batch was synthetic=1 live=0"})
	})
}

// RecordUpstreamFailure increments the failure counter for a source, labeled
// by whether the failure was a credential rejection or an outage.
func RecordUpstreamFailure(source string, authRejected bool) {
	if UpstreamFailures == nil {
		return
	}
	class := "unavailable"
	if authRejected {
		class = "auth_rejected"
	}
	UpstreamFailures.WithLabelValues(source, class).Inc()
}

// SetMonitorActive flips the monitor gauge.
func SetMonitorActive(active bool) {
	if MonitorActiveGauge == nil {
		return
	}
	if active {
		MonitorActiveGauge.Set(1)
	} else {
		MonitorActiveGauge.Set(0)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
