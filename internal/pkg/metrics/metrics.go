package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anicoll/homie-integration/internal/pkg/homie"
)

const namespace = "homie"

var states = []homie.State{
	homie.StateInit,
	homie.StateReady,
	homie.StateDisconnected,
	homie.StateSleeping,
	homie.StateLost,
	homie.StateAlert,
}

// Metrics exports device activity on its own registry. It implements
// homie.Recorder.
type Metrics struct {
	registry       *prometheus.Registry
	state          *prometheus.GaugeVec
	connects       *prometheus.CounterVec
	published      *prometheus.CounterVec
	publishFailed  prometheus.Counter
	setCommands    prometheus.Counter
	hostCPULoad    prometheus.Gauge
	hostMemoryUsed prometheus.Gauge
}

var _ homie.Recorder = (*Metrics)(nil)

func New(deviceID string) *Metrics {
	constLabels := prometheus.Labels{"device_id": deviceID}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "device",
			Name:        "state",
			Help:        "1 for the lifecycle state the device is currently in.",
			ConstLabels: constLabels,
		}, []string{"state"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "transport",
			Name:        "connect_attempts_total",
			ConstLabels: constLabels,
		}, []string{"result"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "transport",
			Name:        "published_messages_total",
			ConstLabels: constLabels,
		}, []string{"retained"}),
		publishFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "transport",
			Name:        "publish_failures_total",
			ConstLabels: constLabels,
		}),
		setCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "device",
			Name:        "set_commands_total",
			ConstLabels: constLabels,
		}),
		hostCPULoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "host",
			Name:        "cpu_load1",
			ConstLabels: constLabels,
		}),
		hostMemoryUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "host",
			Name:        "memory_used_ratio",
			ConstLabels: constLabels,
		}),
	}

	m.registry.MustRegister(collectors.NewBuildInfoCollector())
	m.registry.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollections(collectors.GoRuntimeMemStatsCollection | collectors.GoRuntimeMetricsCollection),
	))
	m.registry.MustRegister(m.state, m.connects, m.published, m.publishFailed, m.setCommands, m.hostCPULoad, m.hostMemoryUsed)

	for _, s := range states {
		m.state.WithLabelValues(s.String()).Set(0)
	}
	m.state.WithLabelValues(homie.StateInit.String()).Set(1)
	return m
}

func (m *Metrics) StateChanged(state homie.State) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s.String()).Set(v)
	}
}

func (m *Metrics) ConnectAttempt(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.connects.WithLabelValues(result).Inc()
}

func (m *Metrics) Published(retained bool) {
	m.published.WithLabelValues(strconv.FormatBool(retained)).Inc()
}

func (m *Metrics) PublishFailed() {
	m.publishFailed.Inc()
}

func (m *Metrics) SetReceived() {
	m.setCommands.Inc()
}

// ObserveHost records the latest host sample. memoryPercent is in [0,100].
func (m *Metrics) ObserveHost(cpuLoad, memoryPercent float64) {
	m.hostCPULoad.Set(cpuLoad)
	m.hostMemoryUsed.Set(memoryPercent / 100)
}

// Handler exposes the registry in the Prometheus text or OpenMetrics format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
