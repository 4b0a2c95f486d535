package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the instrumentation surface of the poll loop and router.
type Recorder interface {
	ObserveCycle(status string, duration time.Duration)
	AddProcessed(n int)
	IncDetected(kind string)
	IncDelivered(kind string)
	IncSuppressed(kind, reason string)
	IncSubscriptionSend(status string)
	IncProductError()
}

// Suppression reasons.
const (
	ReasonDisabled  = "disabled"
	ReasonCooldown  = "cooldown"
	ReasonTransport = "transport"
	ReasonNoChannel = "no_channel"
	ReasonGateError = "gate_error"
)

// Prometheus records into a prometheus registry.
type Prometheus struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	processed     prometheus.Counter
	detected      *prometheus.CounterVec
	delivered     *prometheus.CounterVec
	suppressed    *prometheus.CounterVec
	subscriptions *prometheus.CounterVec
	productErrors prometheus.Counter
}

// New registers the collectors on reg. A nil registerer selects the default one.
func New(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Prometheus{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_cycles_total",
			Help: "Poll cycles by outcome",
		}, []string{"status"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "drivewatch_cycle_duration_seconds",
			Help:    "Duration of poll cycles",
			Buckets: prometheus.DefBuckets,
		}),
		processed: f.NewCounter(prometheus.CounterOpts{
			Name: "drivewatch_products_processed_total",
			Help: "Products processed across all cycles",
		}),
		detected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_alerts_detected_total",
			Help: "Alert events produced by the detector",
		}, []string{"kind"}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_alerts_delivered_total",
			Help: "Broadcast alerts delivered",
		}, []string{"kind"}),
		suppressed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_alerts_suppressed_total",
			Help: "Broadcast alerts not delivered",
		}, []string{"kind", "reason"}),
		subscriptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_subscription_sends_total",
			Help: "Subscriber sends by outcome",
		}, []string{"status"}),
		productErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "drivewatch_product_errors_total",
			Help: "Products whose processing failed within a cycle",
		}),
	}
}

func (p *Prometheus) ObserveCycle(status string, duration time.Duration) {
	p.cycles.WithLabelValues(status).Inc()
	p.cycleDuration.Observe(duration.Seconds())
}

func (p *Prometheus) AddProcessed(n int) {
	p.processed.Add(float64(n))
}

func (p *Prometheus) IncDetected(kind string) {
	p.detected.WithLabelValues(kind).Inc()
}

func (p *Prometheus) IncDelivered(kind string) {
	p.delivered.WithLabelValues(kind).Inc()
}

func (p *Prometheus) IncSuppressed(kind, reason string) {
	p.suppressed.WithLabelValues(kind, reason).Inc()
}

func (p *Prometheus) IncSubscriptionSend(status string) {
	p.subscriptions.WithLabelValues(status).Inc()
}

func (p *Prometheus) IncProductError() {
	p.productErrors.Inc()
}

// Noop discards everything.
type Noop struct{}

func (Noop) ObserveCycle(string, time.Duration) {}
func (Noop) AddProcessed(int)                   {}
func (Noop) IncDetected(string)                 {}
func (Noop) IncDelivered(string)                {}
func (Noop) IncSuppressed(string, string)       {}
func (Noop) IncSubscriptionSend(string)         {}
func (Noop) IncProductError()                   {}

var (
	_ Recorder = (*Prometheus)(nil)
	_ Recorder = Noop{}
)
