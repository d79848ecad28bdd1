package uringcore

import (
	"github.com/ehrlich-b/go-uringcore/internal/constants"
	"golang.org/x/sys/unix"
)

// Re-export constants for public API
const (
	InvalidFd = constants.InvalidFd
	PageSize  = constants.PageSize
)

// Protection and flags requested for every mapping. MAP_POPULATE pre-faults
// the pages so the ring's hot path never takes a first-touch fault.
const (
	MapProt  = unix.PROT_READ | unix.PROT_WRITE
	MapFlags = unix.MAP_SHARED | unix.MAP_POPULATE
)

const (
	opValidate = "VALIDATE_FD"
	opClose    = "CLOSE"
	opDisarm   = "INTO_RAW_FD"
	opMmap     = "MMAP"
	opMunmap   = "MUNMAP"
)
