// Package schedule defines cron-triggered schedule records that dispatch
// chained actions against a filtered set of course instances.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var (
	// ErrNotFound indicates the schedule does not exist.
	ErrNotFound = errors.New("schedule not found")

	// ErrInvalid indicates a malformed cron expression or filter.
	// Rejected at creation time, before anything is persisted.
	ErrInvalid = errors.New("invalid schedule")
)

// cronParser accepts the standard 5-field cron syntax.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ActionStep is one entry of a schedule's action chain.
type ActionStep struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Schedule dispatches its action chain against every course instance matching
// the filter each time the cron expression fires. The running flag is a
// re-entrancy guard for the schedule itself, independent of per-entity locks.
type Schedule struct {
	id             uuid.UUID
	courseID       uuid.UUID
	name           string
	cronExpr       string
	schema         []ActionStep
	instanceFilter string
	running        bool

	filter *Filter
}

// New validates and creates a schedule. The cron expression must be valid
// 5-field cron syntax and the filter a well-formed boolean expression over
// instance fields; either failure yields ErrInvalid.
func New(id, courseID uuid.UUID, name, cronExpr string, schema []ActionStep, instanceFilter string) (*Schedule, error) {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return nil, fmt.Errorf("%w: cron %q: %v", ErrInvalid, cronExpr, err)
	}

	filter, err := CompileFilter(instanceFilter)
	if err != nil {
		return nil, fmt.Errorf("%w: filter %q: %v", ErrInvalid, instanceFilter, err)
	}

	if len(schema) == 0 {
		return nil, fmt.Errorf("%w: schema must chain at least one action", ErrInvalid)
	}
	for i, step := range schema {
		if step.Action == "" {
			return nil, fmt.Errorf("%w: schema step %d has no action name", ErrInvalid, i)
		}
	}

	return &Schedule{
		id:             id,
		courseID:       courseID,
		name:           name,
		cronExpr:       cronExpr,
		schema:         schema,
		instanceFilter: instanceFilter,
		filter:         filter,
	}, nil
}

// Reconstruct creates a Schedule from stored fields, recompiling the filter.
// This should only be used by repositories when loading from the DB. Stored
// schedules were validated on the way in, so a compile failure here means the
// store was modified out of band.
func Reconstruct(id, courseID uuid.UUID, name, cronExpr string, schema []ActionStep, instanceFilter string, running bool) (*Schedule, error) {
	filter, err := CompileFilter(instanceFilter)
	if err != nil {
		return nil, fmt.Errorf("recompiling stored filter %q: %w", instanceFilter, err)
	}

	return &Schedule{
		id:             id,
		courseID:       courseID,
		name:           name,
		cronExpr:       cronExpr,
		schema:         schema,
		instanceFilter: instanceFilter,
		running:        running,
		filter:         filter,
	}, nil
}

func (s *Schedule) ID() uuid.UUID          { return s.id }
func (s *Schedule) CourseID() uuid.UUID    { return s.courseID }
func (s *Schedule) Name() string           { return s.name }
func (s *Schedule) CronExpr() string       { return s.cronExpr }
func (s *Schedule) InstanceFilter() string { return s.instanceFilter }
func (s *Schedule) Running() bool          { return s.running }

// Schema returns a copy of the ordered action chain.
func (s *Schedule) Schema() []ActionStep {
	out := make([]ActionStep, len(s.schema))
	copy(out, s.schema)
	return out
}

// Filter returns the compiled instance filter.
func (s *Schedule) Filter() *Filter { return s.filter }

// NextAfter returns the next firing time strictly after t.
func (s *Schedule) NextAfter(t time.Time) time.Time {
	sched, err := cronParser.Parse(s.cronExpr)
	if err != nil {
		// Validated at construction; unreachable for stored schedules.
		return time.Time{}
	}
	return sched.Next(t)
}
