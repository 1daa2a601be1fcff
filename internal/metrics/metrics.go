// Package metrics exposes Prometheus metrics for the serial link.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledcontrol",
		Subsystem: "serial",
		Name:      "frames_written_total",
		Help:      "Frames successfully written to the LED controller board",
	})

	writeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledcontrol",
		Subsystem: "serial",
		Name:      "write_errors_total",
		Help:      "Failed frame transmissions, including timeouts",
	})

	writeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledcontrol",
		Subsystem: "serial",
		Name:      "write_duration_seconds",
		Help:      "Time spent transmitting one frame",
		Buckets:   prometheus.DefBuckets,
	})

	frameBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledcontrol",
		Subsystem: "serial",
		Name:      "last_frame_bytes",
		Help:      "Size of the most recently written frame",
	})
)

// ObserveWrite records the outcome of one frame transmission.
func ObserveWrite(size int, elapsed time.Duration, err error) {
	if err != nil {
		writeErrors.Inc()
		return
	}
	framesWritten.Inc()
	writeDuration.Observe(elapsed.Seconds())
	frameBytes.Set(float64(size))
}
