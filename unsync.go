package uringcore

// LoadU32Relaxed reads *p with a plain load: no atomic instruction, no fence.
//
// It is only correct when the ring protocol already orders the access, for
// example when this goroutine is the sole writer of the field (an SQ tail or
// CQ head owned by the application), when a full barrier was issued just
// before, or when reading a value one update stale is acceptable. Everything
// else must use sync/atomic.
//
// The compiler is free to hoist a plain load out of a loop, so never spin on
// this function waiting for another writer.
func LoadU32Relaxed(p *uint32) uint32 {
	return *p
}
