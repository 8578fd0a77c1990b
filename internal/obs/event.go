package obs

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// NewTraceID returns a fresh per-resync/per-event trace id (§4.9).
func NewTraceID() string {
	return uuid.NewString()
}

// Status is the resync-level outcome reported in a Summary, per §4.4's
// state machine and §7's "derived status" requirement.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Summary is the structured event emitted at the end of every resync:
// started/finished timestamps, counts, and the derived status. Webhook
// events do not emit a Summary; the webhook dispatcher logs each event's
// per-kind counts itself.
type Summary struct {
	TraceID           string
	Integration       string
	Kind              string // empty for a whole-resync summary spanning all kinds
	Started           time.Time
	Finished          time.Time
	Status            Status
	RecordsSeen       int
	EntitiesUpserted  int
	EntitiesDeleted   int
	MappingFailures   int
	WriteFailures     int
	ThresholdBreached bool
}

// Log emits the summary at INFO via the given logger.
func (s Summary) Log(log logr.Logger) {
	log.Info("resync summary",
		"trace_id", s.TraceID,
		"integration", s.Integration,
		"kind", s.Kind,
		"status", s.Status,
		"records_seen", s.RecordsSeen,
		"entities_upserted", s.EntitiesUpserted,
		"entities_deleted", s.EntitiesDeleted,
		"mapping_failures", s.MappingFailures,
		"write_failures", s.WriteFailures,
		"threshold_breached", s.ThresholdBreached,
		"duration", s.Finished.Sub(s.Started).String(),
	)
}
