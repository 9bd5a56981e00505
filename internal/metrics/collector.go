// Package metrics records relay activity on a private Prometheus registry and
// exposes it both as a flat JSON object and in Prometheus text format.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"slackrelay/internal/domain"
)

const namespace = "slackrelay"

// Event is a relay lifecycle event.
type Event string

const (
	EventRelayed Event = "relayed"
	EventRetried Event = "retried"
	EventFailed  Event = "failed"
)

// Collector owns every metric the service exports.
type Collector struct {
	registry *prometheus.Registry

	relayEvents     *prometheus.CounterVec
	relayLatency    *prometheus.HistogramVec
	webhookRequests *prometheus.CounterVec
	notifyRequests  *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry, so several
// collectors can coexist (tests, multiple servers).
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	start := time.Now()

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Time since start in seconds",
	}, func() float64 { return time.Since(start).Seconds() })

	return &Collector{
		registry: reg,
		relayEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_total",
			Help:      "Relay lifecycle events by kind, source and upstream error",
		}, []string{"event", "source", "error_kind"}),
		relayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_latency_seconds",
			Help:      "End-to-end relay latency including retries",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"source"}),
		webhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook requests by outcome",
		}, []string{"status"}),
		notifyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_requests_total",
			Help:      "Cluster notification requests by outcome",
		}, []string{"status"}),
	}
}

// Record counts one relay event. kind is empty for EventRelayed.
func (c *Collector) Record(event Event, source string, kind domain.ErrorKind) {
	c.relayEvents.WithLabelValues(string(event), source, string(kind)).Inc()
}

// ObserveRelay records the duration of a complete relay.
func (c *Collector) ObserveRelay(source string, d time.Duration) {
	c.relayLatency.WithLabelValues(source).Observe(d.Seconds())
}

// WebhookRequest counts a webhook request by outcome.
func (c *Collector) WebhookRequest(status string) {
	c.webhookRequests.WithLabelValues(status).Inc()
}

// NotifyRequest counts a notification request by outcome.
func (c *Collector) NotifyRequest(status string) {
	c.notifyRequests.WithLabelValues(status).Inc()
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Snapshot flattens every metric into name{label="value",...} -> value.
// Histograms contribute _count and _sum entries.
func (c *Collector) Snapshot() (map[string]float64, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		name := mf.GetName()
		for _, m := range mf.GetMetric() {
			labels := formatLabels(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[name+labels] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[name+labels] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				out[name+"_count"+labels] = float64(h.GetSampleCount())
				out[name+"_sum"+labels] = h.GetSampleSum()
			}
		}
	}
	return out, nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}

// Handler renders Snapshot as JSON.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := c.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "metrics unavailable"})
			return
		}
		json.NewEncoder(w).Encode(snap)
	}
}

// PrometheusHandler renders the registry in Prometheus text format.
func (c *Collector) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
