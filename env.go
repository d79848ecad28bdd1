package uringcore

import (
	"unsafe"

	"github.com/ehrlich-b/go-uringcore/internal/logging"
	"golang.org/x/sys/unix"
)

// Syscalls is the OS layer underneath Fd and Mmap. The default
// implementation calls straight into golang.org/x/sys/unix; tests substitute
// FakeSyscalls to count and fail calls.
type Syscalls interface {
	Mmap(fd int, offset int64, length uintptr, prot, flags int) (unsafe.Pointer, error)
	Munmap(addr unsafe.Pointer, length uintptr) error
	Close(fd int) error
}

// UnixSyscalls implements Syscalls with real system calls
type UnixSyscalls struct{}

func (UnixSyscalls) Mmap(fd int, offset int64, length uintptr, prot, flags int) (unsafe.Pointer, error) {
	return unix.MmapPtr(fd, offset, nil, length, prot, flags)
}

func (UnixSyscalls) Munmap(addr unsafe.Pointer, length uintptr) error {
	return unix.MunmapPtr(addr, length)
}

func (UnixSyscalls) Close(fd int) error {
	return unix.Close(fd)
}

// Logger is the logging surface used by this package. *logging.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ReleaseHook receives errors nobody else could observe: a failed close run
// by the finalizer of a dropped Fd, or ErrLeaked for a Mmap dropped without
// Close.
type ReleaseHook func(err error)

// Env bundles the collaborators used by descriptor handles and mapped
// regions. A nil field falls back to its default.
type Env struct {
	Sys      Syscalls
	Logger   Logger
	Observer Observer

	// OnReleaseError is invoked for failed finalizer-driven releases
	OnReleaseError ReleaseHook
}

// DefaultEnv returns the environment used by the package-level constructors
func DefaultEnv() *Env {
	return &Env{
		Sys:      UnixSyscalls{},
		Logger:   logging.Default(),
		Observer: NoOpObserver{},
	}
}

func (e *Env) normalized() *Env {
	if e == nil {
		return DefaultEnv()
	}
	n := *e
	if n.Sys == nil {
		n.Sys = UnixSyscalls{}
	}
	if n.Logger == nil {
		n.Logger = logging.Nop()
	}
	if n.Observer == nil {
		n.Observer = NoOpObserver{}
	}
	return &n
}

// reportReleaseError routes a release failure that has no caller to return to
func (e *Env) reportReleaseError(err error) {
	e.Logger.Warn("release failed without an owner to report to", "error", err)
	if e.OnReleaseError != nil {
		e.OnReleaseError(err)
	}
}
