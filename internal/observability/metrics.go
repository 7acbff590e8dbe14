package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for one subledger run.
type Metrics struct {
	TradesProcessed   prometheus.Counter
	GroupsProcessed   prometheus.Counter
	PostingsGenerated *prometheus.CounterVec
	ControlRecords    *prometheus.CounterVec
	ControlBreaks     *prometheus.CounterVec
	UnmatchedSells    prometheus.Counter
	StageDuration     *prometheus.HistogramVec
	PersistRows       *prometheus.CounterVec
	PublishErrors     prometheus.Counter
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics on an explicit registerer. Tests pass
// a fresh prometheus.NewRegistry so repeated construction never collides.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	stageBuckets := []float64{
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
	}

	return &Metrics{
		TradesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "subledger_trades_processed_total",
			Help: "Blotter trades consumed by the run",
		}),

		GroupsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "subledger_groups_processed_total",
			Help: "Position groups processed",
		}),

		PostingsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subledger_postings_generated_total",
			Help: "GL postings emitted",
		}, []string{"posting_type"}),

		ControlRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subledger_control_records_total",
			Help: "Control records produced",
		}, []string{"control"}),

		ControlBreaks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subledger_control_breaks_total",
			Help: "Control records with difference beyond tolerance",
		}, []string{"control"}),

		UnmatchedSells: factory.NewCounter(prometheus.CounterOpts{
			Name: "subledger_unmatched_sell_groups_total",
			Help: "Groups where sells exceeded FIFO buy inventory",
		}),

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "subledger_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: stageBuckets,
		}, []string{"stage"}),

		PersistRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subledger_persist_rows_total",
			Help: "Rows written to Postgres",
		}, []string{"table"}),

		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "subledger_publish_errors_total",
			Help: "Break events that failed to publish to NATS",
		}),
	}
}
