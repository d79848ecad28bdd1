package uapi

import "unsafe"

// SQRingOffsets matches struct io_sqring_offsets. Each field is a byte
// offset into the SQ ring mapping.
type SQRingOffsets struct {
	Head        uint32
	Tail        uint32
	RingMask    uint32
	RingEntries uint32
	Flags       uint32
	Dropped     uint32
	Array       uint32
	Resv1       uint32
	UserAddr    uint64
}

// CQRingOffsets matches struct io_cqring_offsets. Each field is a byte
// offset into the CQ ring mapping.
type CQRingOffsets struct {
	Head        uint32
	Tail        uint32
	RingMask    uint32
	RingEntries uint32
	Overflow    uint32
	CQEs        uint32
	Flags       uint32
	Resv1       uint32
	UserAddr    uint64
}

// Params matches struct io_uring_params, filled in by io_uring_setup(2)
type Params struct {
	SQEntries    uint32
	CQEntries    uint32
	Flags        uint32
	SQThreadCPU  uint32
	SQThreadIdle uint32
	Features     uint32
	WQFd         uint32
	Resv         [3]uint32
	SQOff        SQRingOffsets
	CQOff        CQRingOffsets
}

// HasFeature reports whether the kernel advertised feature
func (p *Params) HasFeature(feature uint32) bool {
	return p.Features&feature != 0
}

// SQEntrySize returns the size of one submission queue entry
func (p *Params) SQEntrySize() uint32 {
	if p.Flags&IORING_SETUP_SQE128 != 0 {
		return SQE128Size
	}
	return SQESize
}

// CQEntrySize returns the size of one completion queue entry
func (p *Params) CQEntrySize() uint32 {
	if p.Flags&IORING_SETUP_CQE32 != 0 {
		return CQE32Size
	}
	return CQESize
}

// SQRingSize returns the number of bytes to map at IORING_OFF_SQ_RING
func (p *Params) SQRingSize() uint32 {
	return p.SQOff.Array + p.SQEntries*SQArrayEntrySize
}

// CQRingSize returns the number of bytes to map at IORING_OFF_CQ_RING
func (p *Params) CQRingSize() uint32 {
	return p.CQOff.CQEs + p.CQEntries*p.CQEntrySize()
}

// SingleRingSize returns the size of the combined SQ/CQ mapping used when
// IORING_FEAT_SINGLE_MMAP is set
func (p *Params) SingleRingSize() uint32 {
	return max(p.SQRingSize(), p.CQRingSize())
}

// SQEsSize returns the number of bytes to map at IORING_OFF_SQES
func (p *Params) SQEsSize() uint32 {
	return p.SQEntries * p.SQEntrySize()
}

// Pointer returns the params address for passing to io_uring_setup(2)
func (p *Params) Pointer() unsafe.Pointer {
	return unsafe.Pointer(p)
}

// CQE matches struct io_uring_cqe without the CQE32 extension
type CQE struct {
	UserData uint64
	Res      int32
	Flags    uint32
}
