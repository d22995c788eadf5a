package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	holdingDesc = prometheus.NewDesc(
		"postal_queue_holding", "Messages loaded but not yet picked up by a worker.",
		[]string{"queue"}, nil)
	processingDesc = prometheus.NewDesc(
		"postal_queue_processing", "Messages checked out by a worker.",
		[]string{"queue"}, nil)
	dequeuedDesc = prometheus.NewDesc(
		"postal_queue_dequeued_total", "Messages released via Put since the last scrape.",
		[]string{"queue"}, nil)
	allocatedDesc = prometheus.NewDesc(
		"postal_queue_allocated_blocks", "Arena nodes currently off the free list.",
		[]string{"queue"}, nil)
)

// Collector adapts Engine.Snapshot to prometheus.Collector. Scraping it
// consumes DequeuedSinceLastRead the same way any other reader of Snapshot
// would; don't register the same Engine under two Collectors.
type Collector struct {
	Name   string
	Engine *Engine
}

func (c Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- holdingDesc
	ch <- processingDesc
	ch <- dequeuedDesc
	ch <- allocatedDesc
}

func (c Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.Engine.Snapshot()
	ch <- prometheus.MustNewConstMetric(holdingDesc, prometheus.GaugeValue, float64(m.Holding), c.Name)
	ch <- prometheus.MustNewConstMetric(processingDesc, prometheus.GaugeValue, float64(m.Processing), c.Name)
	ch <- prometheus.MustNewConstMetric(dequeuedDesc, prometheus.CounterValue, float64(m.DequeuedSinceLastRead), c.Name)
	ch <- prometheus.MustNewConstMetric(allocatedDesc, prometheus.GaugeValue, float64(m.AllocatedBlocks), c.Name)
}
