package uringcore

import (
	"runtime"
	"sync/atomic"
)

const (
	stateArmed uint32 = iota
	stateReleased
)

// noCopy lets go vet's copylocks check flag copies of owning types.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Fd owns one raw OS descriptor and closes it exactly once.
//
// An Fd is used through its pointer and must not be copied. Ownership leaves
// the handle either by Close, by IntoRawFd (the caller becomes responsible
// for closing), or, as a last resort, by a finalizer once the handle becomes
// unreachable while still armed.
type Fd struct {
	_     noCopy
	raw   int
	state atomic.Uint32
	env   *Env
}

// NewFd validates raw and takes ownership of it. It fails with
// ErrInvalidDescriptor if raw is negative, without touching any OS state.
func NewFd(raw int) (*Fd, error) {
	return DefaultEnv().NewFd(raw)
}

// FromRawFd takes ownership of raw without validating it. Use it only for
// values a trusted OS call just returned; adopting a negative or foreign
// descriptor makes the eventual close undefined.
func FromRawFd(raw int) *Fd {
	return DefaultEnv().FromRawFd(raw)
}

// NewFd is NewFd bound to this environment
func (e *Env) NewFd(raw int) (*Fd, error) {
	if raw < 0 {
		return nil, newInvalidDescriptorError(raw)
	}
	return e.FromRawFd(raw), nil
}

// FromRawFd is FromRawFd bound to this environment
func (e *Env) FromRawFd(raw int) *Fd {
	env := e.normalized()
	f := &Fd{raw: raw, env: env}
	runtime.SetFinalizer(f, (*Fd).finalize)

	env.Observer.ObserveOpen()
	env.Logger.Debug("descriptor adopted", "fd", raw)
	return f
}

// AsRawFd returns the descriptor without giving up ownership, or InvalidFd
// once the handle has been closed or disarmed. The returned number is only
// valid while f is reachable: keep the handle alive (runtime.KeepAlive) past
// the last use, or its finalizer may close the descriptor underneath.
func (f *Fd) AsRawFd() int {
	if f.state.Load() != stateArmed {
		return InvalidFd
	}
	return f.raw
}

// IntoRawFd gives up ownership and returns the descriptor. The handle will
// never close it; the caller (typically FromRawFd on the receiving side) now
// must. A second call returns InvalidFd.
func (f *Fd) IntoRawFd() int {
	if !f.state.CompareAndSwap(stateArmed, stateReleased) {
		return InvalidFd
	}
	runtime.SetFinalizer(f, nil)

	f.env.Observer.ObserveDisarm()
	f.env.Logger.Debug("descriptor ownership transferred", "fd", f.raw, "op", opDisarm)
	return f.raw
}

// Close closes the descriptor now and reports the result. Subsequent calls
// return ErrAlreadyReleased, as does Close after IntoRawFd.
func (f *Fd) Close() error {
	if !f.state.CompareAndSwap(stateArmed, stateReleased) {
		return newAlreadyReleasedError(opClose)
	}
	runtime.SetFinalizer(f, nil)
	return f.release()
}

func (f *Fd) release() error {
	err := f.env.Sys.Close(f.raw)
	f.env.Observer.ObserveClose(err == nil)
	if err != nil {
		return newSyscallError(opClose, f.raw, ErrCodeReleaseFailed, err)
	}
	f.env.Logger.Debug("descriptor closed", "fd", f.raw)
	return nil
}

func (f *Fd) finalize() {
	if !f.state.CompareAndSwap(stateArmed, stateReleased) {
		return
	}
	f.env.Observer.ObserveLeak(KindFd)
	f.env.Logger.Warn("descriptor handle dropped without Close", "fd", f.raw)
	if err := f.release(); err != nil {
		f.env.reportReleaseError(err)
	}
}
