package uringcore

import (
	"sync"
	"syscall"
	"unsafe"
)

// FakeOp names a FakeSyscalls operation for failure injection
type FakeOp string

const (
	FakeOpMmap   FakeOp = "mmap"
	FakeOpMunmap FakeOp = "munmap"
	FakeOpClose  FakeOp = "close"
)

// FakeSyscalls is an instrumented in-process Syscalls implementation for
// tests. Mappings are backed by Go memory, every call is counted per
// descriptor or address, and a second release of the same descriptor or
// region is recorded as a double release and fails like the kernel would.
type FakeSyscalls struct {
	mu sync.Mutex

	mappings map[uintptr]fakeMapping
	unmaps   map[uintptr]int
	closes   map[int]int
	faults   map[FakeOp]fakeFault

	mmapCalls      int
	munmapCalls    int
	closeCalls     int
	doubleReleases int
}

type fakeFault struct {
	skip  int
	errno syscall.Errno
}

type fakeMapping struct {
	fd     int
	offset int64
	length uintptr
	mem    []uint64
}

// NewFakeSyscalls creates an empty fake OS layer
func NewFakeSyscalls() *FakeSyscalls {
	return &FakeSyscalls{
		mappings: make(map[uintptr]fakeMapping),
		unmaps:   make(map[uintptr]int),
		closes:   make(map[int]int),
		faults:   make(map[FakeOp]fakeFault),
	}
}

// Env returns an environment whose OS layer is this fake
func (f *FakeSyscalls) Env() *Env {
	return &Env{Sys: f}
}

// FailNext makes the next call of op fail with errno
func (f *FakeSyscalls) FailNext(op FakeOp, errno syscall.Errno) {
	f.FailAfter(op, 0, errno)
}

// FailAfter lets the next n calls of op succeed and fails the one after
// with errno
func (f *FakeSyscalls) FailAfter(op FakeOp, n int, errno syscall.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = fakeFault{skip: n, errno: errno}
}

func (f *FakeSyscalls) injected(op FakeOp) error {
	fault, ok := f.faults[op]
	if !ok {
		return nil
	}
	if fault.skip > 0 {
		fault.skip--
		f.faults[op] = fault
		return nil
	}
	delete(f.faults, op)
	return fault.errno
}

// Mmap implements Syscalls
func (f *FakeSyscalls) Mmap(fd int, offset int64, length uintptr, prot, flags int) (unsafe.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mmapCalls++
	if err := f.injected(FakeOpMmap); err != nil {
		return nil, err
	}
	if fd < 0 || f.closes[fd] > 0 {
		return nil, syscall.EBADF
	}
	if length == 0 || offset < 0 || offset%PageSize != 0 {
		return nil, syscall.EINVAL
	}

	words := (length + 7) / 8
	mem := make([]uint64, words)
	addr := unsafe.Pointer(&mem[0])
	f.track(uintptr(addr), fakeMapping{fd: fd, offset: offset, length: length, mem: mem})
	return addr, nil
}

// track records a new mapping. The Go allocator may hand out the address of
// an earlier, already unmapped region again, so its unmap history is reset.
func (f *FakeSyscalls) track(key uintptr, mapping fakeMapping) {
	delete(f.unmaps, key)
	f.mappings[key] = mapping
}

// Munmap implements Syscalls
func (f *FakeSyscalls) Munmap(addr unsafe.Pointer, length uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.munmapCalls++
	key := uintptr(addr)
	f.unmaps[key]++
	if err := f.injected(FakeOpMunmap); err != nil {
		delete(f.mappings, key)
		return err
	}

	mapping, ok := f.mappings[key]
	if !ok {
		if f.unmaps[key] > 1 {
			f.doubleReleases++
		}
		return syscall.EINVAL
	}
	if mapping.length != length {
		return syscall.EINVAL
	}
	delete(f.mappings, key)
	return nil
}

// Close implements Syscalls
func (f *FakeSyscalls) Close(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closeCalls++
	f.closes[fd]++
	if f.closes[fd] > 1 {
		f.doubleReleases++
		return syscall.EBADF
	}
	return f.injected(FakeOpClose)
}

// MmapCalls returns the number of Mmap calls
func (f *FakeSyscalls) MmapCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mmapCalls
}

// MunmapCalls returns the number of Munmap calls
func (f *FakeSyscalls) MunmapCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.munmapCalls
}

// CloseCalls returns the number of Close calls
func (f *FakeSyscalls) CloseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

// CloseCount returns how many times fd was closed
func (f *FakeSyscalls) CloseCount(fd int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes[fd]
}

// UnmapCount returns how many times the region at addr was unmapped
func (f *FakeSyscalls) UnmapCount(addr unsafe.Pointer) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unmaps[uintptr(addr)]
}

// LiveMappings returns the number of regions mapped and not yet unmapped
func (f *FakeSyscalls) LiveMappings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mappings)
}

// DoubleReleases returns the number of repeated close or munmap calls
func (f *FakeSyscalls) DoubleReleases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doubleReleases
}

var _ Syscalls = (*FakeSyscalls)(nil)
