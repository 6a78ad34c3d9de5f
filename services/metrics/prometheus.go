package metricsvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/masomo-chat/core/notification"
	pushsvc "github.com/trezcool/masomo-chat/services/push"
)

const namespace = "masomo"

// Collector records notification outcomes.
type Collector struct {
	registry *prometheus.Registry

	fanOuts    *prometheus.CounterVec
	recipients *prometheus.CounterVec
	pushes     *prometheus.CounterVec
	sessions   prometheus.GaugeFunc
}

var (
	_ notification.Observer = (*Collector)(nil)
	_ pushsvc.Observer      = (*Collector)(nil)
)

// New registers the collectors on a fresh registry. `sessions` reports the live realtime session count.
func New(sessions func() float64) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		fanOuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "fanouts_total",
			Help:      "Events fanned out, by kind.",
		}, []string{"kind"}),
		recipients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "recipients_total",
			Help:      "Fan-out recipients, by kind and outcome (socket, push, unreached).",
		}, []string{"kind", "outcome"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "deliveries_total",
			Help:      "Push deliveries, by platform and result code.",
		}, []string{"platform", "code"}),
	}
	if sessions == nil {
		sessions = func() float64 { return 0 }
	}
	c.sessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "sessions",
		Help:      "Live realtime sessions on this instance.",
	}, sessions)

	reg.MustRegister(
		c.fanOuts, c.recipients, c.pushes, c.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveFanOut(res notification.Result) {
	kind := string(res.Kind)
	c.fanOuts.WithLabelValues(kind).Inc()
	for _, r := range res.PerRecipient {
		if r.SocketSent {
			c.recipients.WithLabelValues(kind, "socket").Inc()
		}
		if r.PushSent > 0 {
			c.recipients.WithLabelValues(kind, "push").Inc()
		}
		if !r.Reached() {
			c.recipients.WithLabelValues(kind, "unreached").Inc()
		}
	}
}

func (c *Collector) ObserveDelivery(d notification.Delivery) {
	code := "ok"
	if !d.Success {
		code = string(d.Code)
	}
	c.pushes.WithLabelValues(string(d.Platform), code).Inc()
}

// Handler exposes the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
