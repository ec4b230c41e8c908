package nexlog

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a file handler's staging-buffer counters and, when
// present, an async pipeline's queue counters as Prometheus metrics. It is
// registerable with any prometheus.Registerer.
type Collector struct {
	fileHandler *FileHandler
	async       *AsyncLogger

	bufCapacity    *prometheus.Desc
	bufOccupancy   *prometheus.Desc
	bufWritten     *prometheus.Desc
	bufPeak        *prometheus.Desc
	bufOverflows   *prometheus.Desc
	bufUnderflows  *prometheus.Desc
	bufCompactions *prometheus.Desc

	queueCapacity *prometheus.Desc
	queueDepth    *prometheus.Desc
	queuePushed   *prometheus.Desc
	queueDropped  *prometheus.Desc
	processed     *prometheus.Desc
	workerErrors  *prometheus.Desc
}

// NewCollector builds a collector over the given sources. Either argument
// may be nil; the corresponding metrics are simply not exported.
func NewCollector(fh *FileHandler, async *AsyncLogger) *Collector {
	return &Collector{
		fileHandler: fh,
		async:       async,
		bufCapacity: prometheus.NewDesc(
			"nexlog_buffer_capacity_bytes",
			"Fixed capacity of the file staging buffer.",
			nil, nil),
		bufOccupancy: prometheus.NewDesc(
			"nexlog_buffer_occupancy_bytes",
			"Bytes currently staged in the file buffer.",
			nil, nil),
		bufWritten: prometheus.NewDesc(
			"nexlog_buffer_written_bytes_total",
			"Total bytes accepted by the staging buffer.",
			nil, nil),
		bufPeak: prometheus.NewDesc(
			"nexlog_buffer_peak_bytes",
			"Highest observed staging buffer occupancy.",
			nil, nil),
		bufOverflows: prometheus.NewDesc(
			"nexlog_buffer_overflows_total",
			"Writes rejected because the staging buffer had no room.",
			nil, nil),
		bufUnderflows: prometheus.NewDesc(
			"nexlog_buffer_underflows_total",
			"Reads attempted against an empty staging buffer.",
			nil, nil),
		bufCompactions: prometheus.NewDesc(
			"nexlog_buffer_compactions_total",
			"Times the staging buffer was relinearized under pressure.",
			nil, nil),
		queueCapacity: prometheus.NewDesc(
			"nexlog_queue_capacity_entries",
			"Bounded capacity of the async entry queue.",
			nil, nil),
		queueDepth: prometheus.NewDesc(
			"nexlog_queue_depth_entries",
			"Entries currently waiting in the async queue.",
			nil, nil),
		queuePushed: prometheus.NewDesc(
			"nexlog_queue_pushed_total",
			"Entries accepted by the async queue.",
			nil, nil),
		queueDropped: prometheus.NewDesc(
			"nexlog_queue_dropped_total",
			"Oldest entries discarded by the async queue under overload.",
			nil, nil),
		processed: prometheus.NewDesc(
			"nexlog_worker_processed_total",
			"Records delivered by the async worker.",
			nil, nil),
		workerErrors: prometheus.NewDesc(
			"nexlog_worker_errors_total",
			"Handler failures observed by the async worker.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	if c.fileHandler != nil {
		ch <- c.bufCapacity
		ch <- c.bufOccupancy
		ch <- c.bufWritten
		ch <- c.bufPeak
		ch <- c.bufOverflows
		ch <- c.bufUnderflows
		ch <- c.bufCompactions
	}
	if c.async != nil {
		ch <- c.queueCapacity
		ch <- c.queueDepth
		ch <- c.queuePushed
		ch <- c.queueDropped
		ch <- c.processed
		ch <- c.workerErrors
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.fileHandler != nil {
		stats := c.fileHandler.BufferStats()
		ch <- prometheus.MustNewConstMetric(c.bufCapacity, prometheus.GaugeValue, float64(stats.Capacity))
		ch <- prometheus.MustNewConstMetric(c.bufOccupancy, prometheus.GaugeValue, float64(stats.Occupancy))
		ch <- prometheus.MustNewConstMetric(c.bufWritten, prometheus.CounterValue, float64(stats.TotalWritten))
		ch <- prometheus.MustNewConstMetric(c.bufPeak, prometheus.GaugeValue, float64(stats.PeakUsage))
		ch <- prometheus.MustNewConstMetric(c.bufOverflows, prometheus.CounterValue, float64(stats.Overflows))
		ch <- prometheus.MustNewConstMetric(c.bufUnderflows, prometheus.CounterValue, float64(stats.Underflows))
		ch <- prometheus.MustNewConstMetric(c.bufCompactions, prometheus.CounterValue, float64(stats.Compactions))
	}
	if c.async != nil {
		stats := c.async.Stats()
		ch <- prometheus.MustNewConstMetric(c.queueCapacity, prometheus.GaugeValue, float64(stats.Queue.Capacity))
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(stats.Queue.Depth))
		ch <- prometheus.MustNewConstMetric(c.queuePushed, prometheus.CounterValue, float64(stats.Queue.Pushed))
		ch <- prometheus.MustNewConstMetric(c.queueDropped, prometheus.CounterValue, float64(stats.Queue.Dropped))
		ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(stats.Processed))
		ch <- prometheus.MustNewConstMetric(c.workerErrors, prometheus.CounterValue, float64(stats.Errors))
	}
}
