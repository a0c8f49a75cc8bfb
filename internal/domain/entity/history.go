package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// HistoryEvent is one record in an entity's append-only audit trail.
// Events are immutable once appended; history is never reordered or rewound.
type HistoryEvent struct {
	event      string
	successful bool
	timestamp  time.Time
	logID      uuid.UUID // zero when the event produced no log
	data       json.RawMessage
}

// NewHistoryEvent creates an event stamped with the current time.
func NewHistoryEvent(event string, successful bool, logID uuid.UUID, data json.RawMessage) HistoryEvent {
	return HistoryEvent{
		event:      event,
		successful: successful,
		timestamp:  time.Now().UTC(),
		logID:      logID,
		data:       data,
	}
}

// ReconstructHistoryEvent creates an event from stored fields.
// This should only be used by repositories when loading from the DB.
func ReconstructHistoryEvent(event string, successful bool, timestamp time.Time, logID uuid.UUID, data json.RawMessage) HistoryEvent {
	return HistoryEvent{
		event:      event,
		successful: successful,
		timestamp:  timestamp,
		logID:      logID,
		data:       data,
	}
}

func (h HistoryEvent) Event() string        { return h.event }
func (h HistoryEvent) Successful() bool     { return h.successful }
func (h HistoryEvent) Timestamp() time.Time { return h.timestamp }

// LogID returns the referenced log and whether one exists. The reference is
// a weak back-reference; the log is owned by the journal subsystem.
func (h HistoryEvent) LogID() (uuid.UUID, bool) {
	return h.logID, h.logID != uuid.Nil
}

func (h HistoryEvent) Data() json.RawMessage { return h.data }
