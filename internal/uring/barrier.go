package uring

import "sync/atomic"

// barrierDummy is the target of the fence's locked read-modify-write.
var barrierDummy int64

// Fence issues a full memory fence. On x86-64 atomic.AddInt64 compiles to
// LOCK XADD, which orders every earlier load and store against later ones;
// on other architectures the Go memory model gives the same guarantee for
// sequentially consistent atomics.
func Fence() {
	atomic.AddInt64(&barrierDummy, 0)
}
