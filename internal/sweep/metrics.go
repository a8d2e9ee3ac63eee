package sweep

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tensortrain_sweep"

// Metrics exposes sweep progress to Prometheus.
type Metrics struct {
	RoundsTotal   *prometheus.CounterVec
	RoundDuration prometheus.Histogram
	AchievedError *prometheus.GaugeVec
	MaxRank       *prometheus.GaugeVec
	InFlightBytes prometheus.Gauge
}

// NewMetrics registers the sweep metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RoundsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: namespace + "_rounds_total",
				Help: "Total number of threshold roundings",
			},
			[]string{"status"}, // success/error
		),
		RoundDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    namespace + "_round_duration_seconds",
				Help:    "Time to round and evaluate one threshold",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),
		AchievedError: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: namespace + "_achieved_relative_error",
				Help: "Measured relative error of the last rounding per threshold",
			},
			[]string{"threshold"},
		),
		MaxRank: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: namespace + "_max_rank",
				Help: "Largest interior rank of the last rounding per threshold",
			},
			[]string{"threshold"},
		),
		InFlightBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: namespace + "_inflight_bytes",
				Help: "Bytes of dense reconstructions currently reserved",
			},
		),
	}
}

func (m *Metrics) observe(rec Record) {
	if m == nil {
		return
	}
	m.RoundDuration.Observe(rec.Duration.Seconds())
	if rec.Err != nil {
		m.RoundsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RoundsTotal.WithLabelValues("success").Inc()
	label := strconv.FormatFloat(rec.Threshold, 'g', -1, 64)
	m.AchievedError.WithLabelValues(label).Set(rec.RelativeError)
	m.MaxRank.WithLabelValues(label).Set(float64(rec.MaxRank()))
}

func (m *Metrics) reserve(bytes int64) {
	if m != nil {
		m.InFlightBytes.Add(float64(bytes))
	}
}
