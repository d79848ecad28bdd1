package uring

import (
	"github.com/pawelgaczynski/giouring"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/ehrlich-b/go-uringcore/internal/logging"
)

// Features describes what the running kernel offers
type Features struct {
	KernelVersion string
	IoUring       bool  // A ring could be created
	SetupErr      error // Why ring creation failed, if it did
}

// Probe reports the kernel version and whether io_uring rings can be
// created. Ring creation goes through giouring so that a failure here is
// independent of this package's own setup path.
func Probe() Features {
	logger := logging.Default()

	var f Features
	if v, err := host.KernelVersion(); err == nil {
		f.KernelVersion = v
	} else {
		logger.Debug("kernel version unavailable", "error", err)
	}

	ring, err := giouring.CreateRing(1)
	if err != nil {
		f.SetupErr = err
		logger.Debug("io_uring unavailable", "kernel", f.KernelVersion, "error", err)
		return f
	}
	ring.QueueExit()

	f.IoUring = true
	return f
}

// Supported returns nil if io_uring rings can be created
func Supported() error {
	return Probe().SetupErr
}
