package uringcore

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the mmap latency histogram buckets in nanoseconds.
// MAP_POPULATE makes mapping cost proportional to size, so the buckets run
// from 1us (a single page) to 1s (very large regions).
var LatencyBuckets = []uint64{
	1_000,         // 1us
	10_000,        // 10us
	100_000,       // 100us
	1_000_000,     // 1ms
	10_000_000,    // 10ms
	100_000_000,   // 100ms
	1_000_000_000, // 1s
}

const numLatencyBuckets = 7

// Metrics tracks descriptor and mapping lifecycle statistics
type Metrics struct {
	// Descriptor handles
	FdsOpened   atomic.Uint64 // Handles armed via NewFd/FromRawFd
	FdsClosed   atomic.Uint64 // Handles released by close (explicit or finalizer)
	FdsDisarmed atomic.Uint64 // Handles whose ownership moved out via IntoRawFd
	CloseErrors atomic.Uint64 // close(2) failures

	// Mapped regions
	MapsCreated atomic.Uint64 // Successful mmap calls
	MapFailures atomic.Uint64 // Failed mmap calls
	Unmaps      atomic.Uint64 // Regions released (explicit or finalizer)
	UnmapErrors atomic.Uint64 // munmap(2) failures

	// Bytes currently mapped and the high-water mark
	BytesMapped     atomic.Int64
	PeakBytesMapped atomic.Int64

	// Releases performed by a finalizer because the owner never called Close
	LeakedFds  atomic.Uint64
	LeakedMaps atomic.Uint64

	// mmap latency tracking
	TotalMapLatencyNs atomic.Uint64
	MapLatencyCount   atomic.Uint64

	// Each bucket[i] counts mappings with latency <= LatencyBuckets[i]
	MapLatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // UnixNano
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordOpen records a handle taking ownership of a descriptor
func (m *Metrics) RecordOpen() {
	m.FdsOpened.Add(1)
}

// RecordClose records a descriptor release
func (m *Metrics) RecordClose(success bool) {
	m.FdsClosed.Add(1)
	if !success {
		m.CloseErrors.Add(1)
	}
}

// RecordDisarm records ownership moving out of a handle
func (m *Metrics) RecordDisarm() {
	m.FdsDisarmed.Add(1)
}

// RecordMap records an mmap attempt
func (m *Metrics) RecordMap(bytes uint64, latencyNs uint64, success bool) {
	if !success {
		m.MapFailures.Add(1)
		return
	}
	m.MapsCreated.Add(1)
	cur := m.BytesMapped.Add(int64(bytes))
	for {
		peak := m.PeakBytesMapped.Load()
		if cur <= peak || m.PeakBytesMapped.CompareAndSwap(peak, cur) {
			break
		}
	}
	m.recordLatency(latencyNs)
}

// RecordUnmap records a region release. The bytes are no longer considered
// mapped even when munmap fails, since the region will never retry.
func (m *Metrics) RecordUnmap(bytes uint64, success bool) {
	m.Unmaps.Add(1)
	m.BytesMapped.Add(-int64(bytes))
	if !success {
		m.UnmapErrors.Add(1)
	}
}

// RecordLeak records a finalizer-driven release of the given resource kind
func (m *Metrics) RecordLeak(kind ResourceKind) {
	switch kind {
	case KindFd:
		m.LeakedFds.Add(1)
	case KindMmap:
		m.LeakedMaps.Add(1)
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalMapLatencyNs.Add(latencyNs)
	m.MapLatencyCount.Add(1)

	// Cumulative histogram
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.MapLatencyBuckets[i].Add(1)
		}
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	FdsOpened   uint64
	FdsClosed   uint64
	FdsDisarmed uint64
	CloseErrors uint64
	OpenFds     uint64 // Handles still owning a descriptor

	MapsCreated  uint64
	MapFailures  uint64
	Unmaps       uint64
	UnmapErrors  uint64
	LiveMappings uint64

	BytesMapped     int64
	PeakBytesMapped int64

	LeakedFds  uint64
	LeakedMaps uint64

	AvgMapLatencyNs uint64
	MapLatencyP50Ns uint64
	MapLatencyP99Ns uint64

	// Histogram bucket counts (cumulative)
	MapLatencyHistogram [numLatencyBuckets]uint64

	UptimeNs uint64
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		FdsOpened:       m.FdsOpened.Load(),
		FdsClosed:       m.FdsClosed.Load(),
		FdsDisarmed:     m.FdsDisarmed.Load(),
		CloseErrors:     m.CloseErrors.Load(),
		MapsCreated:     m.MapsCreated.Load(),
		MapFailures:     m.MapFailures.Load(),
		Unmaps:          m.Unmaps.Load(),
		UnmapErrors:     m.UnmapErrors.Load(),
		BytesMapped:     m.BytesMapped.Load(),
		PeakBytesMapped: m.PeakBytesMapped.Load(),
		LeakedFds:       m.LeakedFds.Load(),
		LeakedMaps:      m.LeakedMaps.Load(),
	}

	if released := snap.FdsClosed + snap.FdsDisarmed; snap.FdsOpened > released {
		snap.OpenFds = snap.FdsOpened - released
	}
	if snap.MapsCreated > snap.Unmaps {
		snap.LiveMappings = snap.MapsCreated - snap.Unmaps
	}

	count := m.MapLatencyCount.Load()
	if count > 0 {
		snap.AvgMapLatencyNs = m.TotalMapLatencyNs.Load() / count
		snap.MapLatencyP50Ns = m.calculatePercentile(0.50)
		snap.MapLatencyP99Ns = m.calculatePercentile(0.99)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.MapLatencyHistogram[i] = m.MapLatencyBuckets[i].Load()
	}

	snap.UptimeNs = uint64(time.Now().UnixNano() - m.StartTime.Load())
	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.MapLatencyCount.Load()
	if total == 0 {
		return 0
	}

	targetCount := uint64(float64(total) * percentile)
	if targetCount == 0 {
		targetCount = 1
	}

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.MapLatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.MapLatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing)
func (m *Metrics) Reset() {
	m.FdsOpened.Store(0)
	m.FdsClosed.Store(0)
	m.FdsDisarmed.Store(0)
	m.CloseErrors.Store(0)
	m.MapsCreated.Store(0)
	m.MapFailures.Store(0)
	m.Unmaps.Store(0)
	m.UnmapErrors.Store(0)
	m.BytesMapped.Store(0)
	m.PeakBytesMapped.Store(0)
	m.LeakedFds.Store(0)
	m.LeakedMaps.Store(0)
	m.TotalMapLatencyNs.Store(0)
	m.MapLatencyCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.MapLatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
}

// ResourceKind names the resource a leak observation refers to
type ResourceKind string

const (
	KindFd   ResourceKind = "fd"
	KindMmap ResourceKind = "mmap"
)

// Observer interface allows pluggable metrics collection
type Observer interface {
	// ObserveOpen is called when a handle takes ownership of a descriptor
	ObserveOpen()

	// ObserveClose is called for each descriptor release
	ObserveClose(success bool)

	// ObserveDisarm is called when ownership moves out of a handle
	ObserveDisarm()

	// ObserveMap is called for each mmap attempt
	ObserveMap(bytes uint64, latencyNs uint64, success bool)

	// ObserveUnmap is called for each region release
	ObserveUnmap(bytes uint64, success bool)

	// ObserveLeak is called when a finalizer releases an unclosed resource
	ObserveLeak(kind ResourceKind)
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveOpen()                    {}
func (NoOpObserver) ObserveClose(bool)               {}
func (NoOpObserver) ObserveDisarm()                  {}
func (NoOpObserver) ObserveMap(uint64, uint64, bool) {}
func (NoOpObserver) ObserveUnmap(uint64, bool)       {}
func (NoOpObserver) ObserveLeak(ResourceKind)        {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveOpen() {
	o.metrics.RecordOpen()
}

func (o *MetricsObserver) ObserveClose(success bool) {
	o.metrics.RecordClose(success)
}

func (o *MetricsObserver) ObserveDisarm() {
	o.metrics.RecordDisarm()
}

func (o *MetricsObserver) ObserveMap(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordMap(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveUnmap(bytes uint64, success bool) {
	o.metrics.RecordUnmap(bytes, success)
}

func (o *MetricsObserver) ObserveLeak(kind ResourceKind) {
	o.metrics.RecordLeak(kind)
}

// Metrics returns the underlying metrics
func (o *MetricsObserver) Metrics() *Metrics {
	return o.metrics
}

// Compile-time interface check
var _ Observer = (*MetricsObserver)(nil)
