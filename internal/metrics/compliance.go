package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"compliance-monitor/internal/compliance"
)

// Evaluation labels.
const (
	EvaluationWarehouses = "warehouses"
	EvaluationRetention  = "retention"
	EvaluationTags       = "tags"
)

// Compliance holds the gauges refreshed after every evaluation pass.
type Compliance struct {
	objects    *prometheus.GaugeVec
	violations *prometheus.GaugeVec
	rate       *prometheus.GaugeVec
	evaluated  *prometheus.GaugeVec
}

func NewCompliance(reg prometheus.Registerer) *Compliance {
	factory := promauto.With(reg)
	return &Compliance{
		objects: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compliance_objects",
			Help: "Objects in the latest evaluation by status",
		}, []string{"evaluation", "object_type", "status"}),
		violations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compliance_violations",
			Help: "Violations in the latest evaluation, split by whitelisting",
		}, []string{"evaluation", "object_type", "whitelisted"}),
		rate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compliance_rate_percent",
			Help: "Compliant objects over checked objects, in percent",
		}, []string{"evaluation", "object_type"}),
		evaluated: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compliance_last_evaluation_timestamp_seconds",
			Help: "Unix time of the latest evaluation",
		}, []string{"evaluation"}),
	}
}

// Observe records one summary per object type for an evaluation.
func (c *Compliance) Observe(evaluation string, summaries map[compliance.ObjectType]compliance.Summary) {
	for objectType, s := range summaries {
		t := string(objectType)
		c.objects.WithLabelValues(evaluation, t, "compliant").Set(float64(s.Compliant))
		c.objects.WithLabelValues(evaluation, t, "non_compliant").Set(float64(s.NonCompliant))
		c.objects.WithLabelValues(evaluation, t, "no_rules").Set(float64(s.NoRulesApplicable))
		c.violations.WithLabelValues(evaluation, t, "false").Set(float64(s.ActiveViolations))
		c.violations.WithLabelValues(evaluation, t, "true").Set(float64(s.WhitelistedViolations))
		c.rate.WithLabelValues(evaluation, t).Set(s.ComplianceRate)
	}
	c.evaluated.WithLabelValues(evaluation).Set(float64(time.Now().Unix()))
}

// Refresh tracks inventory refresh runs in the worker.
type Refresh struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.GaugeVec
}

func NewRefresh(reg prometheus.Registerer) *Refresh {
	factory := promauto.With(reg)
	return &Refresh{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_refresh_runs_total",
			Help: "Inventory refresh runs by source and status",
		}, []string{"source", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inventory_refresh_duration_seconds",
			Help:    "Inventory refresh duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		rows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inventory_snapshot_rows",
			Help: "Rows captured by the latest successful refresh",
		}, []string{"source", "table"}),
	}
}

func (r *Refresh) ObserveRun(source, status string, elapsed time.Duration) {
	r.runs.WithLabelValues(source, status).Inc()
	r.duration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (r *Refresh) ObserveRows(source string, warehouses, retention, tags int) {
	r.rows.WithLabelValues(source, "warehouse_details").Set(float64(warehouses))
	r.rows.WithLabelValues(source, "database_retention_details").Set(float64(retention))
	r.rows.WithLabelValues(source, "tag_references").Set(float64(tags))
}
