package observability

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/avetra/sensorlink/internal/ports"
)

// PromObs implements the observability port with Prometheus collectors and
// the standard logger.
type PromObs struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs() *PromObs {
	received := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensorlink_readings_received_total",
		Help: "Readings accepted from the active device stream.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensorlink_frames_dropped_total",
		Help: "Frames discarded because they failed to parse.",
	})
	reconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensorlink_reconnect_attempts_total",
		Help: "Reconnection attempts made by the health monitor.",
	})
	saved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensorlink_sessions_saved_total",
		Help: "Session batches persisted successfully.",
	})
	bufferLen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensorlink_buffer_length",
		Help: "Readings currently held in the session buffer.",
	})
	saveLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sensorlink_save_duration_seconds",
		Help:    "Time from save request to durable artifact.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	prometheus.MustRegister(received, dropped, reconnects, saved, bufferLen, saveLatency)

	return &PromObs{
		counters: map[string]prometheus.Counter{
			"sensorlink_readings_received_total":  received,
			"sensorlink_frames_dropped_total":     dropped,
			"sensorlink_reconnect_attempts_total": reconnects,
			"sensorlink_sessions_saved_total":     saved,
		},
		gauges: map[string]prometheus.Gauge{
			"sensorlink_buffer_length": bufferLen,
		},
		histos: map[string]prometheus.Observer{
			"sensorlink_save_duration_seconds": saveLatency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("ERROR: %s: %v", msg, err)
	}
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

var _ ports.Observability = (*PromObs)(nil)
