package constants

import "time"

// Descriptor and mapping constants
const (
	// InvalidFd is returned by a handle that no longer owns a descriptor
	InvalidFd = -1

	// PageSize is the mapping granularity assumed by the stub OS layer
	PageSize = 4096
)

// Ring setup defaults used by the probe and integration tests
const (
	// DefaultRingEntries is the submission queue size requested by default
	DefaultRingEntries = 8

	// MaxRingEntries is the kernel's IORING_MAX_ENTRIES
	MaxRingEntries = 32768

	// DefaultSetupRetries bounds caller-side retries of ring setup
	DefaultSetupRetries = 3

	// SetupRetryInterval is the initial backoff between setup attempts
	SetupRetryInterval = 50 * time.Millisecond
)
