package uringcore

import (
	"testing"
)

func TestLoadU32RelaxedReadsLastWrite(t *testing.T) {
	values := []uint32{0, 1, 42, 0x7fffffff, 0x80000000, 0xffffffff}

	var word uint32
	for _, v := range values {
		word = v
		if got := LoadU32Relaxed(&word); got != v {
			t.Errorf("LoadU32Relaxed() = %#x, want %#x", got, v)
		}
	}
}

func TestLoadU32RelaxedInsideRegion(t *testing.T) {
	fake := NewFakeSyscalls()
	env := fake.Env()
	fd, err := env.NewFd(3)
	if err != nil {
		t.Fatalf("NewFd: %v", err)
	}
	defer fd.Close()

	m, err := env.NewMmap(fd, 0, PageSize)
	if err != nil {
		t.Fatalf("NewMmap: %v", err)
	}
	defer m.Close()

	tail := PointerAt[uint32](m, 4)
	for i := uint32(0); i < 16; i++ {
		*tail = i * 3
		if got := LoadU32Relaxed(tail); got != i*3 {
			t.Fatalf("iteration %d: got %d, want %d", i, got, i*3)
		}
	}
}
