package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// HistogramBuckets are latency buckets in milliseconds.
var HistogramBuckets = []float64{
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	750, 1000, 1500, 2000, 3000, 5000, 7500, 10000,
	15000, 30000, 60000, 120000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	switch m.Type {
	case "counter_vec":
		return prometheus.NewCounterVec(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case "gauge_vec":
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case "histogram_vec":
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets}, m.Args)
	case "summary_vec":
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	}
	return nil
}

var MetricsBusinessProcess = &Metric{
	ID:          "bpDur",
	Name:        "bp_dur",
	Description: "process latency in milliseconds",
	Type:        "histogram_vec",
	Args:        []string{"type", "subtype"},
}

var metricsWebhookEvents = &Metric{
	ID:          "whEvt",
	Name:        "webhook_events_total",
	Description: "Gateway webhook deliveries partitioned by provider, event class and outcome.",
	Type:        "counter_vec",
	Args:        []string{"provider", "class", "outcome"},
}

var metricsPlanTransitions = &Metric{
	ID:          "planTr",
	Name:        "plan_transitions_total",
	Description: "Applied plan state transitions partitioned by reason.",
	Type:        "counter_vec",
	Args:        []string{"reason"},
}

const (
	RefererKey = "X-Referer"

	subsystem = "billing"
)

// Business holds the domain metrics shared by the billing services.
type Business struct {
	process     *prometheus.HistogramVec
	webhooks    *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

func NewBusiness(reg prometheus.Registerer) (*Business, error) {
	b := &Business{
		process:     NewMetric(MetricsBusinessProcess, subsystem).(*prometheus.HistogramVec),
		webhooks:    NewMetric(metricsWebhookEvents, subsystem).(*prometheus.CounterVec),
		transitions: NewMetric(metricsPlanTransitions, subsystem).(*prometheus.CounterVec),
	}
	for _, c := range []prometheus.Collector{b.process, b.webhooks, b.transitions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// NewNopBusiness returns metrics bound to a throwaway registry.
func NewNopBusiness() *Business {
	b, _ := NewBusiness(prometheus.NewRegistry())
	return b
}

func (b *Business) ObserveProcess(kind, subtype string, start time.Time) {
	b.process.WithLabelValues(kind, subtype).Observe(MillisecondsSince(start))
}

func (b *Business) WebhookEvent(provider, class, outcome string) {
	b.webhooks.WithLabelValues(provider, class, outcome).Inc()
}

func (b *Business) PlanTransition(reason string) {
	b.transitions.WithLabelValues(reason).Inc()
}

func MillisecondsSince(t time.Time) float64 {
	return float64(time.Since(t).Nanoseconds()) / float64(time.Millisecond)
}

var Module = fx.Options(
	fx.Provide(func() (*Business, error) { return NewBusiness(prometheus.DefaultRegisterer) }),
)
