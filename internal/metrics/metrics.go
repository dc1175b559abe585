// Package metrics — счётчики Prometheus для проходов сверки.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"serotonyl.ru/arx-reconciler/internal/features/reconcile"
)

const namespace = "arx_reconciler"

// Recorder собирает метрики из отчётов reconcile. Реализует reconcile.Observer.
type Recorder struct {
	registry *prometheus.Registry

	passes         *prometheus.CounterVec
	entities       *prometheus.CounterVec
	pointsRestored *prometheus.CounterVec
	earnings       prometheus.Counter
	errors         *prometheus.CounterVec
	duration       *prometheus.HistogramVec
}

// NewRecorder создаёт Recorder со своим реестром (плюс go/process коллекторы).
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passes_total",
				Help:      "Проходы сверки по режиму и признаку dry-run.",
			},
			[]string{"mode", "dry_run"},
		),
		entities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entities_total",
				Help:      "Обработанные пользователи/битвы по режиму и итогу.",
			},
			[]string{"mode", "action"},
		),
		pointsRestored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "points_restored_total",
				Help:      "Очки, добавленные сверкой (уменьшения не учитываются).",
			},
			[]string{"mode"},
		),
		earnings: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "earnings_inserted_total",
				Help:      "Вставленные записи arena_earnings.",
			},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Ошибки по сущностям.",
			},
			[]string{"mode"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pass_duration_seconds",
				Help:      "Длительность одного вызова Reconcile.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms .. ~80s
			},
			[]string{"mode"},
		),
	}

	r.registry.MustRegister(
		r.passes,
		r.entities,
		r.pointsRestored,
		r.earnings,
		r.errors,
		r.duration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return r
}

// ObserveReport учитывает один отчёт.
func (r *Recorder) ObserveReport(rep *reconcile.Report, elapsed time.Duration) {
	mode := string(rep.Mode)
	dry := "false"
	if rep.DryRun {
		dry = "true"
	}
	r.passes.WithLabelValues(mode, dry).Inc()

	r.entities.WithLabelValues(mode, "no_change").Add(float64(rep.NoChange))
	r.entities.WithLabelValues(mode, "restored").Add(float64(rep.Restored))
	r.entities.WithLabelValues(mode, "flagged").Add(float64(rep.Flagged))
	r.entities.WithLabelValues(mode, "error").Add(float64(rep.Errored))
	r.errors.WithLabelValues(mode).Add(float64(len(rep.Errors)))

	if !rep.DryRun && rep.Mode != reconcile.ModeAudit {
		if rep.TotalPointsRestored > 0 {
			r.pointsRestored.WithLabelValues(mode).Add(float64(rep.TotalPointsRestored))
		}
		if rep.Mode == reconcile.ModeRestoreEarnings {
			r.earnings.Add(float64(rep.Restored))
		}
	}

	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	r.duration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// Handler отдаёт метрики в формате Prometheus.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
