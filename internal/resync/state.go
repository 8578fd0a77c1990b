package resync

import "github.com/port-labs/ocean-core/internal/catalog"

// State is the resync-wide state machine from §4.4:
//
//	IDLE -> STARTING -> FETCHING_CONFIG -> KINDS_RUNNING -> DELETING -> COMPLETED
//	                                           |
//	                                           +-> FAILED (no delete) / CANCELLED (no delete)
type State string

const (
	StateIdle           State = "IDLE"
	StateStarting       State = "STARTING"
	StateFetchingConfig State = "FETCHING_CONFIG"
	StateKindsRunning   State = "KINDS_RUNNING"
	StateDeleting       State = "DELETING"
	StateCompleted      State = "COMPLETED"
	StateFailed         State = "FAILED"
	StateCancelled      State = "CANCELLED"
)

// resyncStatus maps a State to the catalog.ResyncStatus reported via
// patchIntegration. Only the terminal states have a distinct
// catalog-facing status; every other state (including KINDS_RUNNING and
// DELETING) is reported as RUNNING.
func (s State) resyncStatus() catalog.ResyncStatus {
	switch s {
	case StateCompleted:
		return catalog.ResyncStatusCompleted
	case StateFailed:
		return catalog.ResyncStatusFailed
	case StateCancelled:
		return catalog.ResyncStatusCancelled
	default:
		return catalog.ResyncStatusRunning
	}
}

// terminal reports whether s ends the state machine.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}
