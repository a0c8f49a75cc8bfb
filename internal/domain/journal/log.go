// Package journal defines log records: metadata about one action or schedule
// run, plus a port to the append-only content store backing each record.
package journal

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// LogType discriminates what produced a log.
type LogType string

const (
	LogTypeAction   LogType = "ACTION"
	LogTypeSchedule LogType = "SCHEDULE"
)

// ErrLogTypeUnknown indicates an unrecognized log type string.
var ErrLogTypeUnknown = errors.New("log type unknown")

// ParseLogType validates a stored log type string.
func ParseLogType(s string) (LogType, error) {
	switch LogType(s) {
	case LogTypeAction, LogTypeSchedule:
		return LogType(s), nil
	}
	return "", ErrLogTypeUnknown
}

// RetentionWindow bounds course-scoped log listings. Older metadata remains
// fetchable by id indefinitely.
const RetentionWindow = 72 * time.Hour

// Log is the metadata record for one action or schedule run. Its content
// lives in a separate append-only byte store keyed by the log id, created
// empty alongside the record and appended to only by the run that owns it.
type Log struct {
	id        uuid.UUID
	courseID  uuid.UUID
	logType   LogType
	name      string
	timestamp time.Time
}

// NewLog creates a log record stamped with the current time.
func NewLog(id, courseID uuid.UUID, logType LogType, name string) *Log {
	return &Log{
		id:        id,
		courseID:  courseID,
		logType:   logType,
		name:      name,
		timestamp: time.Now().UTC(),
	}
}

// ReconstructLog creates a Log from stored fields.
// This should only be used by repositories when loading from the DB.
func ReconstructLog(id, courseID uuid.UUID, logType LogType, name string, timestamp time.Time) *Log {
	return &Log{
		id:        id,
		courseID:  courseID,
		logType:   logType,
		name:      name,
		timestamp: timestamp,
	}
}

func (l *Log) ID() uuid.UUID        { return l.id }
func (l *Log) CourseID() uuid.UUID  { return l.courseID }
func (l *Log) Type() LogType        { return l.logType }
func (l *Log) Name() string         { return l.name }
func (l *Log) Timestamp() time.Time { return l.timestamp }
