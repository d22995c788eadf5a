package event

import "github.com/prometheus/client_golang/prometheus"

// serverMetrics is the Open-Question resolution recorded in DESIGN.md:
// silent FIFO-full drops stay silent to the publisher (publish always
// answers TRUE) but are counted so an operator can see backpressure.
type serverMetrics struct {
	fifoDrops prometheus.Counter
}

func newMetrics() serverMetrics {
	return serverMetrics{
		fifoDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postal_event_fifo_drops_total",
			Help: "Events silently dropped because a subscriber's FIFO was full.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (m serverMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.fifoDrops.Desc()
}

// Collect implements prometheus.Collector.
func (m serverMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.fifoDrops
}
