package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"carctrl-core/closed_loop/carcontroller"
)

// Control loop counters and gauges, partitioned by car model.

var (
	// Control loop
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carctrl",
		Subsystem: "control",
		Name:      "cycles_total",
		Help:      "Total control cycles run",
	}, []string{"car"})

	CycleOverruns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carctrl",
		Subsystem: "control",
		Name:      "cycle_overruns_total",
		Help:      "Total control cycles that took longer than one period",
	}, []string{"car"})

	CycleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "carctrl",
		Subsystem: "control",
		Name:      "cycle_duration_seconds",
		Help:      "Control cycle processing duration, transmit included",
		Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
	}, []string{"car"})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carctrl",
		Subsystem: "control",
		Name:      "commands_total",
		Help:      "Total commands emitted, by kind",
	}, []string{"car", "kind"})

	AppliedTorque = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "carctrl",
		Subsystem: "control",
		Name:      "applied_torque",
		Help:      "Last applied steering torque in bus units, by path",
	}, []string{"car", "path"})

	HoldActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "carctrl",
		Subsystem: "control",
		Name:      "hold_active",
		Help:      "1 while the last hold/resume command requested hold",
	}, []string{"car"})

	ResumeActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "carctrl",
		Subsystem: "control",
		Name:      "resume_active",
		Help:      "1 while the last hold/resume command requested resume",
	}, []string{"car"})

	// Bus
	TxFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carctrl",
		Subsystem: "bus",
		Name:      "tx_frames_total",
		Help:      "Total frames transmitted",
	}, []string{"car", "frame"})

	RxFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carctrl",
		Subsystem: "bus",
		Name:      "rx_frames_total",
		Help:      "Total known frames received",
	}, []string{"car", "frame"})

	RxDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carctrl",
		Subsystem: "bus",
		Name:      "rx_dropped_total",
		Help:      "Total received frames dropped, by reason",
	}, []string{"car", "reason"})
)

const (
	PathPrimary     = "primary"
	PathInterceptor = "interceptor"

	DropUnknown  = "unknown"
	DropChecksum = "checksum"
)

// ObserveCycle records the outcome of one control cycle.
func ObserveCycle(car string, report carcontroller.ActuatorReport, cmds []carcontroller.Command, took, period time.Duration) {
	CyclesTotal.WithLabelValues(car).Inc()
	CycleLatency.WithLabelValues(car).Observe(took.Seconds())
	if took > period {
		CycleOverruns.WithLabelValues(car).Inc()
	}

	AppliedTorque.WithLabelValues(car, PathPrimary).Set(float64(report.SteerOutputCAN))
	AppliedTorque.WithLabelValues(car, PathInterceptor).Set(float64(report.InterceptorSteerOutputCAN))

	for _, c := range cmds {
		CommandsTotal.WithLabelValues(car, c.Kind.String()).Inc()
		if c.Kind == carcontroller.AccHoldResume {
			HoldActive.WithLabelValues(car).Set(boolGauge(c.Hold))
			ResumeActive.WithLabelValues(car).Set(boolGauge(c.Resume))
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
