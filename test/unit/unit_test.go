//go:build !integration

package unit

import (
	"errors"
	"syscall"
	"testing"

	uringcore "github.com/ehrlich-b/go-uringcore"
	"github.com/ehrlich-b/go-uringcore/internal/uapi"
)

// These tests use only the public API and the fake OS layer

func TestUAPIConstants(t *testing.T) {
	if uapi.IORING_OFF_SQ_RING != 0 {
		t.Errorf("IORING_OFF_SQ_RING = %x, want 0", uapi.IORING_OFF_SQ_RING)
	}
	if uapi.IORING_OFF_CQ_RING != 0x8000000 {
		t.Errorf("IORING_OFF_CQ_RING = %x, want 0x8000000", uapi.IORING_OFF_CQ_RING)
	}
	if uapi.IORING_OFF_SQES != 0x10000000 {
		t.Errorf("IORING_OFF_SQES = %x, want 0x10000000", uapi.IORING_OFF_SQES)
	}
}

func TestFeatureFlags(t *testing.T) {
	if uapi.IORING_FEAT_SINGLE_MMAP != (1 << 0) {
		t.Error("IORING_FEAT_SINGLE_MMAP has wrong value")
	}
	if uapi.IORING_SETUP_SQE128 != (1 << 10) {
		t.Error("IORING_SETUP_SQE128 has wrong value")
	}
	if uapi.IORING_SETUP_CQE32 != (1 << 11) {
		t.Error("IORING_SETUP_CQE32 has wrong value")
	}
}

func TestHandleAndRegionLifecycle(t *testing.T) {
	fake := uringcore.NewFakeSyscalls()
	env := fake.Env()

	fd, err := env.NewFd(3)
	if err != nil {
		t.Fatalf("NewFd failed: %v", err)
	}

	region, err := env.NewMmap(fd, 0, uringcore.PageSize)
	if err != nil {
		t.Fatalf("NewMmap failed: %v", err)
	}

	*uringcore.PointerAt[uint32](region, 64) = 42
	if got := uringcore.LoadU32Relaxed(uringcore.PointerAt[uint32](region, 64)); got != 42 {
		t.Errorf("LoadU32Relaxed = %d, want 42", got)
	}

	if err := region.Close(); err != nil {
		t.Errorf("region Close failed: %v", err)
	}
	if err := fd.Close(); err != nil {
		t.Errorf("fd Close failed: %v", err)
	}

	if fake.DoubleReleases() != 0 {
		t.Errorf("DoubleReleases = %d, want 0", fake.DoubleReleases())
	}
	if fake.LiveMappings() != 0 {
		t.Errorf("LiveMappings = %d, want 0", fake.LiveMappings())
	}
}

func TestErrorTypes(t *testing.T) {
	var _ error = uringcore.ErrInvalidDescriptor
	var _ error = uringcore.ErrMappingFailed
	var _ error = uringcore.ErrReleaseFailed
	var _ error = uringcore.ErrAlreadyReleased

	_, err := uringcore.NewFd(-1)
	if !errors.Is(err, uringcore.ErrInvalidDescriptor) {
		t.Errorf("NewFd(-1) error = %v, want ErrInvalidDescriptor", err)
	}

	fake := uringcore.NewFakeSyscalls()
	fake.FailNext(uringcore.FakeOpMmap, syscall.EACCES)
	fd := fake.Env().FromRawFd(5)
	defer fd.Close()

	_, err = fake.Env().NewMmap(fd, 0, uringcore.PageSize)
	if !errors.Is(err, uringcore.ErrMappingFailed) {
		t.Errorf("error = %v, want ErrMappingFailed", err)
	}
	if !uringcore.IsCategory(err, uringcore.CategoryPermissionDenied) {
		t.Errorf("error = %v, want permission denied category", err)
	}
}
