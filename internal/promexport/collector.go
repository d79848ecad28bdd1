// Package promexport exposes uringcore.Metrics as Prometheus metrics
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"

	uringcore "github.com/ehrlich-b/go-uringcore"
)

const namespace = "uringcore"

// Collector implements prometheus.Collector over a uringcore.Metrics
type Collector struct {
	metrics *uringcore.Metrics

	fdsOpened   *prometheus.Desc
	fdsClosed   *prometheus.Desc
	fdsDisarmed *prometheus.Desc
	closeErrors *prometheus.Desc
	openFds     *prometheus.Desc

	mapsCreated  *prometheus.Desc
	mapFailures  *prometheus.Desc
	unmaps       *prometheus.Desc
	unmapErrors  *prometheus.Desc
	liveMappings *prometheus.Desc
	bytesMapped  *prometheus.Desc
	peakBytes    *prometheus.Desc

	leaks      *prometheus.Desc
	mapLatency *prometheus.Desc
}

// NewCollector creates a collector reading from m
func NewCollector(m *uringcore.Metrics) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		metrics: m,

		fdsOpened:   desc("fds_opened_total", "Descriptor handles that took ownership of a descriptor."),
		fdsClosed:   desc("fds_closed_total", "Descriptor handles released by close."),
		fdsDisarmed: desc("fds_disarmed_total", "Descriptor handles whose ownership was transferred out."),
		closeErrors: desc("close_errors_total", "close(2) failures."),
		openFds:     desc("open_fds", "Descriptor handles currently owning a descriptor."),

		mapsCreated:  desc("maps_created_total", "Successful mmap calls."),
		mapFailures:  desc("map_failures_total", "Failed mmap calls."),
		unmaps:       desc("unmaps_total", "Mapped regions released."),
		unmapErrors:  desc("unmap_errors_total", "munmap(2) failures."),
		liveMappings: desc("live_mappings", "Mapped regions not yet released."),
		bytesMapped:  desc("mapped_bytes", "Bytes currently mapped."),
		peakBytes:    desc("mapped_bytes_peak", "High-water mark of mapped bytes."),

		leaks:      desc("leaked_total", "Resources released by a finalizer instead of Close.", "kind"),
		mapLatency: desc("mmap_latency_seconds", "Latency of successful mmap calls."),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.fdsOpened, c.fdsClosed, c.fdsDisarmed, c.closeErrors, c.openFds,
		c.mapsCreated, c.mapFailures, c.unmaps, c.unmapErrors, c.liveMappings,
		c.bytesMapped, c.peakBytes, c.leaks, c.mapLatency,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.fdsOpened, snap.FdsOpened)
	counter(c.fdsClosed, snap.FdsClosed)
	counter(c.fdsDisarmed, snap.FdsDisarmed)
	counter(c.closeErrors, snap.CloseErrors)
	gauge(c.openFds, float64(snap.OpenFds))

	counter(c.mapsCreated, snap.MapsCreated)
	counter(c.mapFailures, snap.MapFailures)
	counter(c.unmaps, snap.Unmaps)
	counter(c.unmapErrors, snap.UnmapErrors)
	gauge(c.liveMappings, float64(snap.LiveMappings))
	gauge(c.bytesMapped, float64(snap.BytesMapped))
	gauge(c.peakBytes, float64(snap.PeakBytesMapped))

	counter(c.leaks, snap.LeakedFds, string(uringcore.KindFd))
	counter(c.leaks, snap.LeakedMaps, string(uringcore.KindMmap))

	buckets := make(map[float64]uint64, len(uringcore.LatencyBuckets))
	for i, ns := range uringcore.LatencyBuckets {
		buckets[float64(ns)/1e9] = snap.MapLatencyHistogram[i]
	}
	count := c.metrics.MapLatencyCount.Load()
	sum := float64(c.metrics.TotalMapLatencyNs.Load()) / 1e9
	ch <- prometheus.MustNewConstHistogram(c.mapLatency, count, sum, buckets)
}

var _ prometheus.Collector = (*Collector)(nil)
