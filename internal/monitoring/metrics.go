package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors exported by the rover.
type Metrics struct {
	Cycles        prometheus.Counter
	InvalidFrames prometheus.Counter
	CycleSeconds  prometheus.Histogram
	Transitions   *prometheus.CounterVec // labels: from, to
	Mode          *prometheus.GaugeVec   // labels: mode; 1 for the active mode
	MapCells      *prometheus.GaugeVec   // labels: class
	SinkErrors    *prometheus.CounterVec // labels: sink
	Pickups       prometheus.Counter
}

// NewMetrics creates the rover collectors and registers them with reg.
// A nil reg leaves them unregistered, which suits tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rover_cycles_total",
			Help: "Perception and decision cycles run.",
		}),
		InvalidFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rover_invalid_frames_total",
			Help: "Frames rejected by the classifier.",
		}),
		CycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rover_cycle_seconds",
			Help:    "Wall time spent in one cycle.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rover_mode_transitions_total",
			Help: "Controller mode transitions.",
		}, []string{"from", "to"}),
		Mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rover_mode",
			Help: "1 for the controller's current mode, 0 otherwise.",
		}, []string{"mode"}),
		MapCells: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rover_map_cells",
			Help: "World map cells by consensus class.",
		}, []string{"class"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rover_sink_errors_total",
			Help: "Failed writes to command, decision or map sinks.",
		}, []string{"sink"}),
		Pickups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rover_pickup_requests_total",
			Help: "Sample pickup requests issued.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Cycles, m.InvalidFrames, m.CycleSeconds, m.Transitions,
			m.Mode, m.MapCells, m.SinkErrors, m.Pickups)
	}
	return m
}

// SetMode marks mode as the only active mode among all.
func (m *Metrics) SetMode(mode string, all []string) {
	for _, name := range all {
		v := 0.0
		if name == mode {
			v = 1
		}
		m.Mode.WithLabelValues(name).Set(v)
	}
}
