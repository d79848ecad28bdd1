package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	uringcore "github.com/ehrlich-b/go-uringcore"
	"github.com/ehrlich-b/go-uringcore/internal/constants"
	"github.com/ehrlich-b/go-uringcore/internal/logging"
	"github.com/ehrlich-b/go-uringcore/internal/promexport"
	"github.com/ehrlich-b/go-uringcore/internal/uring"
)

func main() {
	var (
		entries = flag.Uint("entries", constants.DefaultRingEntries, "Submission queue entries for the probe ring")
		file    = flag.String("file", "", "Map this file instead of creating a ring")
		sizeStr = flag.String("size", "4K", "Bytes to map in file mode (e.g., 4K, 1M)")
		offset  = flag.Int64("offset", 0, "Page-aligned file offset to map in file mode")
		retries = flag.Uint("retries", constants.DefaultSetupRetries, "Ring setup retries on transient errors")
		metrics = flag.Bool("metrics", false, "Print resource metrics in Prometheus text format on exit")
		verbose = flag.Bool("v", false, "Verbose output")
		asJSON  = flag.Bool("json", false, "Print results as JSON")
	)
	flag.Parse()

	// Set up logging
	logConfig := logging.DefaultConfig()
	// os.Exit does not wait for an async writer to drain
	logConfig.Sync = true
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	m := uringcore.NewMetrics()
	env := &uringcore.Env{
		Logger:   logger,
		Observer: uringcore.NewMetricsObserver(m),
		OnReleaseError: func(err error) {
			logger.Error("unobserved release failure", "error", err)
		},
	}

	var err error
	if *file != "" {
		size, perr := parseSize(*sizeStr)
		if perr != nil {
			logger.Errorf("invalid size %q: %v", *sizeStr, perr)
			os.Exit(2)
		}
		err = probeFile(env, *file, *offset, size, *asJSON)
	} else {
		n, eerr := ringEntries(*entries)
		if eerr != nil {
			logger.Errorf("invalid -entries: %v", eerr)
			os.Exit(2)
		}
		err = probeRing(env, n, uint64(*retries), *asJSON)
	}

	if *metrics {
		if merr := printMetrics(m); merr != nil {
			logger.Error("failed to gather metrics", "error", merr)
		}
	}

	if err != nil {
		logger.Error("probe failed", "error", err)
		os.Exit(1)
	}
}

// ringEntries checks a -entries value against the kernel's ring size limit
func ringEntries(n uint) (uint32, error) {
	if n == 0 || n > constants.MaxRingEntries {
		return 0, fmt.Errorf("%d out of range [1, %d]", n, constants.MaxRingEntries)
	}
	return uint32(n), nil
}

// setupWithRetry creates a ring, retrying errors a later attempt may not hit
func setupWithRetry(env *uringcore.Env, entries uint32, retries uint64) (*uring.Ring, error) {
	logger := logging.Default().WithOp("IO_URING_SETUP")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = constants.SetupRetryInterval

	var ring *uring.Ring
	op := func() error {
		r, err := uring.Setup(env, entries, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) || errors.Is(err, unix.ENOMEM) {
				return err
			}
			return backoff.Permanent(err)
		}
		ring = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warnf("ring setup failed (%v), retrying in %s", err, wait)
	}

	if err := backoff.RetryNotify(op, backoff.WithMaxRetries(b, retries), notify); err != nil {
		return nil, err
	}
	return ring, nil
}

func probeRing(env *uringcore.Env, entries uint32, retries uint64, asJSON bool) error {
	features := uring.Probe()
	logging.Default().Infof("kernel %s, io_uring available: %v", features.KernelVersion, features.IoUring)

	ring, err := setupWithRetry(env, entries, retries)
	if err != nil {
		return fmt.Errorf("ring setup: %w", err)
	}
	defer func() {
		if cerr := ring.Close(); cerr != nil {
			logging.Error("ring close", "error", cerr)
		}
	}()

	layout := ring.Layout()
	idx := ring.Snapshot()

	if asJSON {
		return printJSON(struct {
			Kernel  string
			Layout  uring.Layout
			Indices uring.Indices
		}{features.KernelVersion, layout, idx})
	}

	fmt.Printf("Kernel: %s\n", features.KernelVersion)
	fmt.Printf("Ring fd: %d (features 0x%x)\n", layout.Fd, layout.Features)
	fmt.Printf("SQ: %d entries (mask 0x%x), ring %s at %#x\n",
		layout.SQEntries, layout.SQMask, formatSize(int64(layout.SQRingBytes)), layout.SQRingAddress)
	fmt.Printf("CQ: %d entries (mask 0x%x), ring %s at %#x\n",
		layout.CQEntries, layout.CQMask, formatSize(int64(layout.CQRingBytes)), layout.CQRingAddress)
	fmt.Printf("SQEs: %s (%d bytes each)\n", formatSize(int64(layout.SQEBytes)), layout.SQEntrySize)
	fmt.Printf("Single mmap: %v\n", layout.SingleMmap)
	fmt.Printf("SQ head/tail: %d/%d, CQ head/tail: %d/%d, dropped %d, overflow %d\n",
		idx.SQHead, idx.SQTail, idx.CQHead, idx.CQTail, idx.SQDropped, idx.CQOverflow)
	return nil
}

func probeFile(env *uringcore.Env, path string, offset, size int64, asJSON bool) error {
	raw, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	fd, err := env.NewFd(raw)
	if err != nil {
		unix.Close(raw)
		return err
	}
	defer fd.Close()

	region, err := env.NewMmap(fd, offset, int(size))
	if err != nil {
		return err
	}
	defer region.Close()

	logging.Default().Debugf("mapped %s of %s at %#x", formatSize(int64(region.Len())), path, uintptr(region.Ptr()))

	first := uringcore.LoadU32Relaxed(uringcore.PointerAt[uint32](region, 0))

	if asJSON {
		return printJSON(struct {
			File      string
			Offset    int64
			Bytes     int
			Address   uintptr
			FirstWord uint32
		}{path, offset, region.Len(), uintptr(region.Ptr()), first})
	}

	fmt.Printf("Mapped %s of %s at offset %d: %#x\n", formatSize(int64(region.Len())), path, offset, uintptr(region.Ptr()))
	fmt.Printf("First word: 0x%08x (%d)\n", first, first)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMetrics(m *uringcore.Metrics) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(promexport.NewCollector(m)); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			name := mf.GetName()
			for _, l := range metric.GetLabel() {
				name += fmt.Sprintf("{%s=%q}", l.GetName(), l.GetValue())
			}
			switch {
			case metric.GetCounter() != nil:
				fmt.Printf("%s %g\n", name, metric.GetCounter().GetValue())
			case metric.GetGauge() != nil:
				fmt.Printf("%s %g\n", name, metric.GetGauge().GetValue())
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				fmt.Printf("%s_count %d\n", name, h.GetSampleCount())
				fmt.Printf("%s_sum %g\n", name, h.GetSampleSum())
			}
		}
	}
	return nil
}

// parseSize parses a size string like "4K", "1M", "1G"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(s)

	var multiplier int64 = 1
	var numStr string

	if strings.HasSuffix(s, "K") {
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	} else if strings.HasSuffix(s, "M") {
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	} else if strings.HasSuffix(s, "G") {
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	} else {
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}

	return num * multiplier, nil
}

// formatSize formats a byte count as a human-readable string
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}
