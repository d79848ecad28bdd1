package uringcore

import (
	"sync"
	"testing"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.FdsOpened != 0 || snap.MapsCreated != 0 {
		t.Errorf("Expected empty initial snapshot, got %+v", snap)
	}

	m.RecordOpen()
	m.RecordOpen()
	m.RecordOpen()
	m.RecordClose(true)
	m.RecordClose(false)
	m.RecordDisarm()

	snap = m.Snapshot()
	if snap.FdsOpened != 3 {
		t.Errorf("Expected 3 opened, got %d", snap.FdsOpened)
	}
	if snap.FdsClosed != 2 {
		t.Errorf("Expected 2 closed, got %d", snap.FdsClosed)
	}
	if snap.CloseErrors != 1 {
		t.Errorf("Expected 1 close error, got %d", snap.CloseErrors)
	}
	if snap.OpenFds != 0 {
		t.Errorf("Expected 0 open fds, got %d", snap.OpenFds)
	}
}

func TestMetricsBytesMapped(t *testing.T) {
	m := NewMetrics()

	m.RecordMap(4096, 1000, true)
	m.RecordMap(8192, 2000, true)
	m.RecordMap(4096, 500, false)
	m.RecordUnmap(8192, true)

	snap := m.Snapshot()
	if snap.MapsCreated != 2 {
		t.Errorf("Expected 2 maps, got %d", snap.MapsCreated)
	}
	if snap.MapFailures != 1 {
		t.Errorf("Expected 1 map failure, got %d", snap.MapFailures)
	}
	if snap.BytesMapped != 4096 {
		t.Errorf("Expected 4096 bytes mapped, got %d", snap.BytesMapped)
	}
	if snap.PeakBytesMapped != 12288 {
		t.Errorf("Expected peak 12288, got %d", snap.PeakBytesMapped)
	}
	if snap.LiveMappings != 1 {
		t.Errorf("Expected 1 live mapping, got %d", snap.LiveMappings)
	}

	m.RecordUnmap(4096, false)
	snap = m.Snapshot()
	if snap.UnmapErrors != 1 || snap.BytesMapped != 0 {
		t.Errorf("Expected failed unmap to still release bytes, got %+v", snap)
	}
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordMap(4096, 500, true)           // 0.5us
	m.RecordMap(4096, 5_000, true)         // 5us
	m.RecordMap(4096, 50_000, true)        // 50us
	m.RecordMap(4096, 5_000_000, true)     // 5ms
	m.RecordMap(4096, 2_000_000_000, true) // above every bucket

	snap := m.Snapshot()

	expectedAvg := uint64(500+5_000+50_000+5_000_000+2_000_000_000) / 5
	if snap.AvgMapLatencyNs != expectedAvg {
		t.Errorf("Expected avg latency %d, got %d", expectedAvg, snap.AvgMapLatencyNs)
	}

	// Cumulative buckets: <=1us:1, <=10us:2, <=100us:3, <=1ms:3, <=10ms:4, ...
	want := [numLatencyBuckets]uint64{1, 2, 3, 3, 4, 4, 4}
	if snap.MapLatencyHistogram != want {
		t.Errorf("Expected histogram %v, got %v", want, snap.MapLatencyHistogram)
	}

	if snap.MapLatencyP50Ns == 0 || snap.MapLatencyP50Ns > 100_000 {
		t.Errorf("Expected p50 within the first three buckets, got %d", snap.MapLatencyP50Ns)
	}
	// Samples above the last bucket are not in the histogram, so p99 lands
	// at the top of the highest populated bucket.
	if snap.MapLatencyP99Ns != 10_000_000 {
		t.Errorf("Expected p99 of 10ms, got %d", snap.MapLatencyP99Ns)
	}
}

func TestMetricsPercentileFewSamples(t *testing.T) {
	m := NewMetrics()
	m.RecordMap(4096, 50_000, true) // 50us

	snap := m.Snapshot()
	if snap.MapLatencyP50Ns != 100_000 {
		t.Errorf("Expected p50 at the 100us bucket for a single 50us sample, got %d", snap.MapLatencyP50Ns)
	}
	if snap.MapLatencyP99Ns != 100_000 {
		t.Errorf("Expected p99 at the 100us bucket for a single 50us sample, got %d", snap.MapLatencyP99Ns)
	}
}

func TestMetricsLeaks(t *testing.T) {
	m := NewMetrics()
	o := NewMetricsObserver(m)

	o.ObserveLeak(KindFd)
	o.ObserveLeak(KindMmap)
	o.ObserveLeak(KindMmap)

	if m.LeakedFds.Load() != 1 || m.LeakedMaps.Load() != 2 {
		t.Errorf("Unexpected leak counts fd=%d mmap=%d", m.LeakedFds.Load(), m.LeakedMaps.Load())
	}
	if o.Metrics() != m {
		t.Error("Metrics() should return the wrapped instance")
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordOpen()
	m.RecordMap(4096, 1000, true)
	m.RecordLeak(KindFd)

	m.Reset()

	snap := m.Snapshot()
	if snap.FdsOpened != 0 || snap.MapsCreated != 0 || snap.BytesMapped != 0 || snap.LeakedFds != 0 {
		t.Errorf("Expected zeroed snapshot after Reset, got %+v", snap)
	}
	for i, c := range snap.MapLatencyHistogram {
		if c != 0 {
			t.Errorf("Bucket %d not reset: %d", i, c)
		}
	}
}

func TestMetricsConcurrentPeak(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordMap(4096, 1000, true)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.PeakBytesMapped != 8*100*4096 {
		t.Errorf("Expected peak %d, got %d", 8*100*4096, snap.PeakBytesMapped)
	}
}
