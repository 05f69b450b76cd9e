// Package metrics exposes device activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rapiduino/rapiduino-go/pkg/device"
	"github.com/rapiduino/rapiduino-go/pkg/wire"
)

const namespace = "rapiduino"

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// DeviceMetrics implements device.Observer.
type DeviceMetrics struct {
	Commands        *prometheus.CounterVec   // labels: command, result
	CommandDuration *prometheus.HistogramVec // labels: command
	OwnedPins       prometheus.Gauge
	Components      prometheus.Gauge
	LinkLost        prometheus.Counter
	Reconnects      prometheus.Counter
}

// NewDeviceMetrics registers and returns the device collectors.
func NewDeviceMetrics(reg prometheus.Registerer) *DeviceMetrics {
	m := &DeviceMetrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Wire command exchanges by command and result.",
		}, []string{"command", "result"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from first byte written to last byte read.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"command"}),
		OwnedPins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_pins",
			Help:      "Pins currently owned by a component.",
		}),
		Components: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_components",
			Help:      "Tokens currently owning at least one pin.",
		}),
		LinkLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_lost_total",
			Help:      "Times the keepalive declared the link lost.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Successful reopenings of the device after a lost link.",
		}),
	}
	reg.MustRegister(m.Commands, m.CommandDuration, m.OwnedPins, m.Components, m.LinkLost, m.Reconnects)
	return m
}

// ObserveExchange implements wire.Observer.
func (m *DeviceMetrics) ObserveExchange(cmd wire.Command, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = wire.Kind(err)
		if result == "" {
			result = "error"
		}
	}
	m.Commands.WithLabelValues(cmd.Name, result).Inc()
	m.CommandDuration.WithLabelValues(cmd.Name).Observe(d.Seconds())
}

// ObserveRegistry implements device.Observer.
func (m *DeviceMetrics) ObserveRegistry(ownedPins, components int) {
	m.OwnedPins.Set(float64(ownedPins))
	m.Components.Set(float64(components))
}

// RegisterLinkUp exports healthy as a 0/1 gauge, sampled at scrape time.
func RegisterLinkUp(reg prometheus.Registerer, healthy func() bool) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "link_up",
		Help:      "1 while the keepalive considers the link alive.",
	}, func() float64 {
		if healthy() {
			return 1
		}
		return 0
	}))
}

var _ device.Observer = (*DeviceMetrics)(nil)
