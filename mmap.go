package uringcore

import (
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mmap owns one shared, read-write, pre-populated mapping and unmaps it
// exactly once, on Close. It does not retain the Fd it was created from;
// whether the descriptor must outlive the mapping is up to the kind of file
// it is.
//
// Pointers obtained from Ptr, Offset, Bytes, PointerAt and PointersAt do not
// keep the Mmap reachable. A region dropped without Close is never unmapped
// behind those pointers: its finalizer only reports the leak.
type Mmap struct {
	_      noCopy
	addr   unsafe.Pointer
	length uintptr
	state  atomic.Uint32
	env    *Env
}

// NewMmap maps length bytes of fd starting at offset with
// PROT_READ|PROT_WRITE and MAP_SHARED|MAP_POPULATE. Failures carry the errno
// and its category; nothing is retried.
func NewMmap(fd *Fd, offset int64, length int) (*Mmap, error) {
	return DefaultEnv().NewMmap(fd, offset, length)
}

// NewMmap is NewMmap bound to this environment
func (e *Env) NewMmap(fd *Fd, offset int64, length int) (*Mmap, error) {
	env := e.normalized()

	raw := InvalidFd
	if fd != nil {
		raw = fd.AsRawFd()
	}
	if length < 0 {
		env.Observer.ObserveMap(0, 0, false)
		return nil, newSyscallError(opMmap, raw, ErrCodeMappingFailed, unix.EINVAL)
	}

	start := time.Now()
	addr, err := env.Sys.Mmap(raw, offset, uintptr(length), MapProt, MapFlags)
	latency := uint64(time.Since(start).Nanoseconds())
	// fd's finalizer must not close the descriptor under a running mmap
	runtime.KeepAlive(fd)

	if err != nil {
		env.Observer.ObserveMap(uint64(length), latency, false)
		env.Logger.Error("mmap failed", "fd", raw, "offset", offset, "length", length, "error", err)
		return nil, newSyscallError(opMmap, raw, ErrCodeMappingFailed, err)
	}

	m := &Mmap{addr: addr, length: uintptr(length), env: env}
	runtime.SetFinalizer(m, (*Mmap).finalize)

	env.Observer.ObserveMap(uint64(length), latency, true)
	env.Logger.Debug("region mapped", "fd", raw, "offset", offset, "length", length, "addr", uintptr(addr))
	return m, nil
}

// Ptr returns the base address of the mapping. It stays valid until Close.
func (m *Mmap) Ptr() unsafe.Pointer {
	return m.addr
}

// Len returns the length of the mapping in bytes
func (m *Mmap) Len() int {
	return int(m.length)
}

// Offset returns Ptr()+off. off is not checked against Len.
func (m *Mmap) Offset(off uintptr) unsafe.Pointer {
	return unsafe.Add(m.addr, off)
}

// Bytes returns the mapping as a byte slice. The slice must not be used
// after Close.
func (m *Mmap) Bytes() []byte {
	return unsafe.Slice((*byte)(m.addr), m.length)
}

// PointerAt overlays a *T on the mapping at byte offset off. This is the one
// unchecked pointer-arithmetic entry point: off+sizeof(T) must lie within the
// mapping and off must satisfy T's alignment, neither of which is verified.
func PointerAt[T any](m *Mmap, off uintptr) *T {
	return (*T)(m.Offset(off))
}

// PointersAt is PointerAt for several fields of the same type at once, in
// the order of offs.
func PointersAt[T any](m *Mmap, offs ...uintptr) []*T {
	ptrs := make([]*T, len(offs))
	for i, off := range offs {
		ptrs[i] = PointerAt[T](m, off)
	}
	return ptrs
}

// Close unmaps the region now and reports the result. Subsequent calls
// return ErrAlreadyReleased.
func (m *Mmap) Close() error {
	if !m.state.CompareAndSwap(stateArmed, stateReleased) {
		return newAlreadyReleasedError(opMunmap)
	}
	runtime.SetFinalizer(m, nil)
	return m.release()
}

func (m *Mmap) release() error {
	err := m.env.Sys.Munmap(m.addr, m.length)
	m.env.Observer.ObserveUnmap(uint64(m.length), err == nil)
	if err != nil {
		return newSyscallError(opMunmap, InvalidFd, ErrCodeReleaseFailed, err)
	}
	m.env.Logger.Debug("region unmapped", "addr", uintptr(m.addr), "length", m.length)
	return nil
}

func (m *Mmap) finalize() {
	if m.state.Load() != stateArmed {
		return
	}
	// Derived pointers may still be in use, so the region stays mapped.
	m.env.Observer.ObserveLeak(KindMmap)
	m.env.Logger.Warn("mapped region dropped without Close", "addr", uintptr(m.addr), "length", m.length)
	if m.env.OnReleaseError != nil {
		m.env.OnReleaseError(newLeakedRegionError(uintptr(m.addr), m.length))
	}
}
