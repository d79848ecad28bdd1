// Package uring sets up an io_uring instance and overlays its shared ring
// headers using the uringcore descriptor and mapping primitives. It stops at
// the layout: submitting and reaping entries belongs to the ring protocol
// built on top.
package uring

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	uringcore "github.com/ehrlich-b/go-uringcore"
	"github.com/ehrlich-b/go-uringcore/internal/constants"
	"github.com/ehrlich-b/go-uringcore/internal/logging"
	"github.com/ehrlich-b/go-uringcore/internal/uapi"
	"golang.org/x/sys/unix"
)

// setupSyscall issues io_uring_setup(2). Tests replace it to run Setup
// against a fake OS layer.
var setupSyscall = func(entries uint32, p *uapi.Params) (int, error) {
	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(entries), uintptr(p.Pointer()), 0)
	if errno != 0 {
		return -1, errno
	}
	return int(fd), nil
}

// SubmissionQueue holds pointers to the SQ ring header fields
type SubmissionQueue struct {
	Head        *uint32
	Tail        *uint32
	RingMask    *uint32
	RingEntries *uint32
	Flags       *uint32
	Dropped     *uint32
	Array       unsafe.Pointer
}

// CompletionQueue holds pointers to the CQ ring header fields
type CompletionQueue struct {
	Head        *uint32
	Tail        *uint32
	RingMask    *uint32
	RingEntries *uint32
	Overflow    *uint32
	Flags       *uint32
	CQEs        unsafe.Pointer
}

// Ring is a mapped io_uring instance
type Ring struct {
	fd     *uringcore.Fd
	params uapi.Params

	sqRing *uringcore.Mmap
	cqRing *uringcore.Mmap // same as sqRing with IORING_FEAT_SINGLE_MMAP
	sqes   *uringcore.Mmap

	SQ SubmissionQueue
	CQ CompletionQueue

	logger *logging.Logger
}

// Setup creates a ring with the given number of SQ entries and setup flags
// and maps its SQ ring, CQ ring and SQE array. A nil env uses the defaults.
func Setup(env *uringcore.Env, entries uint32, flags uint32) (*Ring, error) {
	if entries == 0 || entries > constants.MaxRingEntries {
		return nil, fmt.Errorf("ring entries %d out of range [1, %d]: %w",
			entries, constants.MaxRingEntries, unix.EINVAL)
	}

	logger := ringLogger(env)
	r := &Ring{params: uapi.Params{Flags: flags}}

	raw, err := setupSyscall(entries, &r.params)
	if err != nil {
		logger.Error("io_uring_setup failed", "entries", entries, "flags", fmt.Sprintf("0x%x", flags), "error", err)
		return nil, fmt.Errorf("io_uring_setup: %w", err)
	}

	// io_uring_setup only returns valid descriptors
	r.fd = env.FromRawFd(raw)
	r.logger = logger.WithFd(raw)
	r.logger.Debug("io_uring_setup succeeded",
		"sq_entries", r.params.SQEntries,
		"cq_entries", r.params.CQEntries,
		"features", fmt.Sprintf("0x%x", r.params.Features))

	if err := r.mapRings(env); err != nil {
		if cerr := r.Close(); cerr != nil {
			r.logger.Warn("cleanup after failed ring mapping", "error", cerr)
		}
		return nil, err
	}
	return r, nil
}

// ringLogger follows env's logger so that ring and resource logs share one
// destination
func ringLogger(env *uringcore.Env) *logging.Logger {
	if env == nil {
		return logging.Default()
	}
	switch l := env.Logger.(type) {
	case nil:
		return logging.Nop()
	case *logging.Logger:
		return l
	default:
		return logging.Default()
	}
}

func (r *Ring) mapRings(env *uringcore.Env) error {
	p := &r.params
	single := p.HasFeature(uapi.IORING_FEAT_SINGLE_MMAP)

	sqSize := p.SQRingSize()
	if single {
		sqSize = p.SingleRingSize()
	}

	var err error
	r.sqRing, err = env.NewMmap(r.fd, uapi.IORING_OFF_SQ_RING, int(sqSize))
	if err != nil {
		return fmt.Errorf("mmap sq ring: %w", err)
	}

	if single {
		r.cqRing = r.sqRing
	} else {
		r.cqRing, err = env.NewMmap(r.fd, uapi.IORING_OFF_CQ_RING, int(p.CQRingSize()))
		if err != nil {
			return fmt.Errorf("mmap cq ring: %w", err)
		}
	}

	r.sqes, err = env.NewMmap(r.fd, uapi.IORING_OFF_SQES, int(p.SQEsSize()))
	if err != nil {
		return fmt.Errorf("mmap sqes: %w", err)
	}

	sq := uringcore.PointersAt[uint32](r.sqRing,
		uintptr(p.SQOff.Head),
		uintptr(p.SQOff.Tail),
		uintptr(p.SQOff.RingMask),
		uintptr(p.SQOff.RingEntries),
		uintptr(p.SQOff.Flags),
		uintptr(p.SQOff.Dropped),
	)
	r.SQ = SubmissionQueue{
		Head:        sq[0],
		Tail:        sq[1],
		RingMask:    sq[2],
		RingEntries: sq[3],
		Flags:       sq[4],
		Dropped:     sq[5],
		Array:       r.sqRing.Offset(uintptr(p.SQOff.Array)),
	}

	cq := uringcore.PointersAt[uint32](r.cqRing,
		uintptr(p.CQOff.Head),
		uintptr(p.CQOff.Tail),
		uintptr(p.CQOff.RingMask),
		uintptr(p.CQOff.RingEntries),
		uintptr(p.CQOff.Overflow),
		uintptr(p.CQOff.Flags),
	)
	r.CQ = CompletionQueue{
		Head:        cq[0],
		Tail:        cq[1],
		RingMask:    cq[2],
		RingEntries: cq[3],
		Overflow:    cq[4],
		Flags:       cq[5],
		CQEs:        r.cqRing.Offset(uintptr(p.CQOff.CQEs)),
	}

	r.logger.WithRegion(uintptr(r.sqRing.Ptr()), r.sqRing.Len()).Debug("sq ring mapped", "single_mmap", single)
	if !single {
		r.logger.WithRegion(uintptr(r.cqRing.Ptr()), r.cqRing.Len()).Debug("cq ring mapped")
	}
	r.logger.WithRegion(uintptr(r.sqes.Ptr()), r.sqes.Len()).Debug("sqes mapped")
	return nil
}

// Fd returns the ring descriptor, or uringcore.InvalidFd after Close. The
// number is only valid while r is reachable.
func (r *Ring) Fd() int {
	return r.fd.AsRawFd()
}

// Params returns the parameters the kernel filled in at setup
func (r *Ring) Params() uapi.Params {
	return r.params
}

// SQE returns a pointer to submission queue entry i. i is not bounds checked.
func (r *Ring) SQE(i uint32) unsafe.Pointer {
	return r.sqes.Offset(uintptr(i) * uintptr(r.params.SQEntrySize()))
}

// CQE returns a pointer to completion queue entry i. i is not bounds checked.
func (r *Ring) CQE(i uint32) *uapi.CQE {
	return (*uapi.CQE)(unsafe.Add(r.CQ.CQEs, uintptr(i)*uintptr(r.params.CQEntrySize())))
}

// Layout describes the mapped ring for diagnostics
type Layout struct {
	Fd            int
	SQEntries     uint32
	CQEntries     uint32
	SQMask        uint32
	CQMask        uint32
	SQRingBytes   int
	CQRingBytes   int
	SQEBytes      int
	SingleMmap    bool
	Features      uint32
	SQEntrySize   uint32
	CQEntrySize   uint32
	SQRingAddress uintptr
	CQRingAddress uintptr
}

// Layout reports sizes and ring geometry
func (r *Ring) Layout() Layout {
	return Layout{
		Fd: r.Fd(),
		// ring_mask and ring_entries are written once by the kernel before
		// io_uring_setup returns and never change afterwards.
		SQEntries:     uringcore.LoadU32Relaxed(r.SQ.RingEntries),
		CQEntries:     uringcore.LoadU32Relaxed(r.CQ.RingEntries),
		SQMask:        uringcore.LoadU32Relaxed(r.SQ.RingMask),
		CQMask:        uringcore.LoadU32Relaxed(r.CQ.RingMask),
		SQRingBytes:   r.sqRing.Len(),
		CQRingBytes:   r.cqRing.Len(),
		SQEBytes:      r.sqes.Len(),
		SingleMmap:    r.sqRing == r.cqRing,
		Features:      r.params.Features,
		SQEntrySize:   r.params.SQEntrySize(),
		CQEntrySize:   r.params.CQEntrySize(),
		SQRingAddress: uintptr(r.sqRing.Ptr()),
		CQRingAddress: uintptr(r.cqRing.Ptr()),
	}
}

// Indices is a snapshot of the ring's head/tail and status words
type Indices struct {
	SQHead     uint32
	SQTail     uint32
	CQHead     uint32
	CQTail     uint32
	SQFlags    uint32
	SQDropped  uint32
	CQOverflow uint32
}

// SQPending returns the number of entries submitted but not yet consumed
func (i Indices) SQPending() uint32 {
	return i.SQTail - i.SQHead
}

// CQReady returns the number of completions not yet reaped
func (i Indices) CQReady() uint32 {
	return i.CQTail - i.CQHead
}

// Snapshot reads the ring indices
func (r *Ring) Snapshot() Indices {
	Fence()
	return Indices{
		// Written by the kernel
		SQHead:     atomic.LoadUint32(r.SQ.Head),
		CQTail:     atomic.LoadUint32(r.CQ.Tail),
		SQFlags:    atomic.LoadUint32(r.SQ.Flags),
		SQDropped:  atomic.LoadUint32(r.SQ.Dropped),
		CQOverflow: atomic.LoadUint32(r.CQ.Overflow),
		// Written only by this process; the fence above orders them after
		// any store made by another goroutine before Snapshot was called.
		SQTail: uringcore.LoadU32Relaxed(r.SQ.Tail),
		CQHead: uringcore.LoadU32Relaxed(r.CQ.Head),
	}
}

// Close unmaps every region and closes the ring descriptor. Each resource is
// released even if an earlier release failed; all failures are returned.
func (r *Ring) Close() error {
	var errs []error

	if r.sqes != nil {
		errs = append(errs, r.sqes.Close())
		r.sqes = nil
	}
	if r.cqRing != nil && r.cqRing != r.sqRing {
		errs = append(errs, r.cqRing.Close())
	}
	r.cqRing = nil
	if r.sqRing != nil {
		errs = append(errs, r.sqRing.Close())
		r.sqRing = nil
	}
	if r.fd != nil {
		errs = append(errs, r.fd.Close())
	}

	err := errors.Join(errs...)
	if err != nil && r.logger != nil {
		r.logger.Warn("ring close reported errors", "error", err)
	}
	return err
}
