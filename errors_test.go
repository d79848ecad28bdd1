package uringcore

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := newInvalidDescriptorError(-1)

	if err.Op != opValidate {
		t.Errorf("Expected Op=%s, got %s", opValidate, err.Op)
	}
	if err.Code != ErrCodeInvalidDescriptor {
		t.Errorf("Expected Code=ErrCodeInvalidDescriptor, got %s", err.Code)
	}

	expected := "uringcore: invalid descriptor: raw descriptor -1 is negative (op=VALIDATE_FD)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestSyscallErrorMessage(t *testing.T) {
	err := newSyscallError(opMmap, 3, ErrCodeMappingFailed, syscall.ENODEV)

	expected := fmt.Sprintf("uringcore: mapping failed: %s (op=MMAP, fd=3, category=unsupported resource, errno=%d)",
		syscall.ENODEV.Error(), int(syscall.ENODEV))
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, syscall.ENODEV) {
		t.Error("Expected errors.Is to reach the wrapped errno")
	}
}

func TestSentinelErrors(t *testing.T) {
	structured := &Error{Code: ErrCodeMappingFailed, Fd: -1}

	if !errors.Is(structured, ErrMappingFailed) {
		t.Error("Structured error should match sentinel via errors.Is")
	}
	if errors.Is(structured, ErrReleaseFailed) {
		t.Error("Structured error should not match a different sentinel")
	}
	if ErrInvalidDescriptor.Error() != "uringcore: invalid descriptor" {
		t.Errorf("Unexpected sentinel message %q", ErrInvalidDescriptor.Error())
	}

	wrapped := fmt.Errorf("setting up ring: %w", structured)
	if !errors.Is(wrapped, ErrMappingFailed) {
		t.Error("fmt-wrapped structured error should still match sentinel")
	}
}

func TestWrapError(t *testing.T) {
	if WrapError("X", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}

	err := WrapError("RING_CLOSE", syscall.EBADF)
	if err.Category != CategoryBadDescriptor {
		t.Errorf("Expected bad descriptor category, got %s", err.Category)
	}
	if !errors.Is(err, syscall.EBADF) {
		t.Error("Expected wrapped error to satisfy errors.Is for EBADF")
	}

	inner := newSyscallError(opMunmap, -1, ErrCodeReleaseFailed, syscall.EINVAL)
	rewrapped := WrapError("RING_CLOSE", inner)
	if rewrapped.Op != "RING_CLOSE" || rewrapped.Code != ErrCodeReleaseFailed || rewrapped.Errno != syscall.EINVAL {
		t.Errorf("Unexpected rewrap result: %+v", rewrapped)
	}
	if inner.Op != opMunmap {
		t.Error("WrapError must not mutate its input")
	}
}

func TestMapErrnoToCategory(t *testing.T) {
	tests := []struct {
		errno syscall.Errno
		want  ErrorCategory
	}{
		{syscall.EINVAL, CategoryInvalidArgument},
		{syscall.EOVERFLOW, CategoryInvalidArgument},
		{syscall.ENOMEM, CategoryInsufficientMemory},
		{syscall.EAGAIN, CategoryInsufficientMemory},
		{syscall.EPERM, CategoryPermissionDenied},
		{syscall.EACCES, CategoryPermissionDenied},
		{syscall.ENODEV, CategoryUnsupported},
		{syscall.EBADF, CategoryBadDescriptor},
		{syscall.EINTR, CategoryInterrupted},
		{syscall.EIO, CategoryIOError},
	}

	for _, tt := range tests {
		if got := mapErrnoToCategory(tt.errno); got != tt.want {
			t.Errorf("mapErrnoToCategory(%v) = %s, want %s", tt.errno, got, tt.want)
		}
	}
}

func TestIsHelpers(t *testing.T) {
	err := newSyscallError(opClose, 5, ErrCodeReleaseFailed, syscall.EIO)

	if !IsCode(err, ErrCodeReleaseFailed) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, ErrCodeMappingFailed) {
		t.Error("IsCode should return false for non-matching code")
	}
	if !IsErrno(err, syscall.EIO) || IsErrno(err, syscall.EBADF) {
		t.Error("IsErrno mismatch")
	}
	if !IsCategory(err, CategoryIOError) {
		t.Error("IsCategory should match I/O error")
	}
	if IsCode(nil, ErrCodeReleaseFailed) || IsErrno(nil, syscall.EIO) || IsCategory(nil, CategoryIOError) {
		t.Error("helpers should return false for nil error")
	}
	if IsCode(errors.New("plain"), ErrCodeReleaseFailed) {
		t.Error("IsCode should return false for non-structured error")
	}
}
