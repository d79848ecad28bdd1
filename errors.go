package uringcore

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Error represents a structured error with descriptor context and errno mapping
type Error struct {
	Op       string        // Operation that failed (e.g., "VALIDATE_FD", "MMAP", "CLOSE")
	Fd       int           // Descriptor involved (-1 if not applicable)
	Code     ErrorCode     // High-level error kind
	Category ErrorCategory // OS-level category derived from Errno (empty if no errno)
	Errno    syscall.Errno // Kernel errno (0 if not applicable)
	Msg      string        // Human-readable message
	Inner    error         // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.Fd >= 0 {
		parts = append(parts, fmt.Sprintf("fd=%d", e.Fd))
	}
	if e.Category != "" {
		parts = append(parts, "category="+string(e.Category))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", int(e.Errno)))
	}

	msg := string(e.Code)
	if e.Msg != "" {
		msg = msg + ": " + e.Msg
	}

	if len(parts) > 0 {
		return fmt.Sprintf("uringcore: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return "uringcore: " + msg
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches sentinel CoreError values and other *Error values by code
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if ce, ok := target.(CoreError); ok {
		return e.Code == ErrorCode(ce)
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents the high-level error kinds produced by this package
type ErrorCode string

const (
	ErrCodeInvalidDescriptor ErrorCode = "invalid descriptor"
	ErrCodeMappingFailed     ErrorCode = "mapping failed"
	ErrCodeReleaseFailed     ErrorCode = "release failed"
	ErrCodeAlreadyReleased   ErrorCode = "already released"
	ErrCodeLeaked            ErrorCode = "leaked"
)

// ErrorCategory is the OS-level category of a failed system call
type ErrorCategory string

const (
	CategoryInvalidArgument    ErrorCategory = "invalid argument"
	CategoryInsufficientMemory ErrorCategory = "insufficient memory"
	CategoryPermissionDenied   ErrorCategory = "permission denied"
	CategoryUnsupported        ErrorCategory = "unsupported resource"
	CategoryBadDescriptor      ErrorCategory = "bad descriptor"
	CategoryInterrupted        ErrorCategory = "interrupted"
	CategoryIOError            ErrorCategory = "I/O error"
)

// CoreError is a sentinel error comparable with errors.Is against *Error
type CoreError string

func (e CoreError) Error() string {
	return "uringcore: " + string(e)
}

const (
	ErrInvalidDescriptor CoreError = CoreError(ErrCodeInvalidDescriptor)
	ErrMappingFailed     CoreError = CoreError(ErrCodeMappingFailed)
	ErrReleaseFailed     CoreError = CoreError(ErrCodeReleaseFailed)
	ErrAlreadyReleased   CoreError = CoreError(ErrCodeAlreadyReleased)
	ErrLeaked            CoreError = CoreError(ErrCodeLeaked)
)

func newInvalidDescriptorError(raw int) *Error {
	return &Error{
		Op:   opValidate,
		Fd:   -1,
		Code: ErrCodeInvalidDescriptor,
		Msg:  fmt.Sprintf("raw descriptor %d is negative", raw),
	}
}

func newAlreadyReleasedError(op string) *Error {
	return &Error{
		Op:   op,
		Fd:   -1,
		Code: ErrCodeAlreadyReleased,
	}
}

func newLeakedRegionError(addr uintptr, length uintptr) *Error {
	return &Error{
		Op:   opMunmap,
		Fd:   -1,
		Code: ErrCodeLeaked,
		Msg:  fmt.Sprintf("region %#x (%d bytes) dropped without Close", addr, length),
	}
}

// newSyscallError builds a structured error around a failed OS call
func newSyscallError(op string, fd int, code ErrorCode, inner error) *Error {
	e := &Error{
		Op:    op,
		Fd:    fd,
		Code:  code,
		Inner: inner,
	}

	var errno syscall.Errno
	if errors.As(inner, &errno) {
		e.Errno = errno
		e.Category = mapErrnoToCategory(errno)
		e.Msg = errno.Error()
	} else if inner != nil {
		e.Category = CategoryIOError
		e.Msg = inner.Error()
	}
	return e
}

// WrapError wraps an existing error with operation context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	var ce *Error
	if errors.As(inner, &ce) {
		wrapped := *ce
		wrapped.Op = op
		return &wrapped
	}

	return newSyscallError(op, -1, ErrCodeReleaseFailed, inner)
}

// mapErrnoToCategory maps syscall errno to an error category
func mapErrnoToCategory(errno syscall.Errno) ErrorCategory {
	switch errno {
	case syscall.EINVAL, syscall.EOVERFLOW:
		return CategoryInvalidArgument
	case syscall.ENOMEM, syscall.EAGAIN, syscall.ENFILE:
		return CategoryInsufficientMemory
	case syscall.EPERM, syscall.EACCES:
		return CategoryPermissionDenied
	case syscall.ENODEV, syscall.ENOSYS, syscall.EOPNOTSUPP, syscall.ETXTBSY:
		return CategoryUnsupported
	case syscall.EBADF:
		return CategoryBadDescriptor
	case syscall.EINTR:
		return CategoryInterrupted
	default:
		return CategoryIOError
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsCategory checks if an error carries a specific OS error category
func IsCategory(err error, category ErrorCategory) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category == category
	}
	return false
}

// IsErrno checks if an error matches a specific errno
func IsErrno(err error, errno syscall.Errno) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Errno == errno
	}
	return false
}
