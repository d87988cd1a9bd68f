package services

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Krestall88/cleaning-control-sub003/internal/models"
)

// ErrInvalidRecurrence marks a template whose recurrence parameters cannot
// be evaluated. Generation skips such templates instead of aborting.
var ErrInvalidRecurrence = errors.New("invalid recurrence")

// OccurrenceKey identifies one calendar slot of a task: the task id plus
// the civil date in ISO form. Materialized records and virtual placeholders
// for the same slot share the same key. Template definition entries carry
// the task id alone, with an empty Date.
type OccurrenceKey struct {
	TaskID string
	Date   string
}

func NewOccurrenceKey(taskID string, day time.Time) OccurrenceKey {
	return OccurrenceKey{TaskID: taskID, Date: day.Format("2006-01-02")}
}

type OccurrenceSource string

const (
	SourceVirtual      OccurrenceSource = "virtual"
	SourceMaterialized OccurrenceSource = "materialized"
	SourceOneOff       OccurrenceSource = "one_off"
	SourceTemplate     OccurrenceSource = "template"
)

// Occurrence is one entry of the merged calendar view. Exactly one entry
// exists per key: a materialized record replaces the virtual placeholder
// for its slot. Task carries the full payload so consumers never need a
// second template lookup.
type Occurrence struct {
	Key           OccurrenceKey         `json:"key"`
	Source        OccurrenceSource      `json:"source"`
	ScheduledDate time.Time             `json:"scheduled_date"`
	Frequency     models.RecurrenceKind `json:"frequency"`
	Bucket        Bucket                `json:"bucket"`
	Task          models.Task           `json:"task"`
}

// DateOnly reduces a timestamp to its civil date in the given location,
// represented canonically as midnight UTC. All day-granularity comparisons
// and the scheduled_date column go through this representation.
func DateOnly(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ValidateRecurrence checks that a template's recurrence parameters are
// evaluable: WEEKLY needs a week day in 0..6, StoppedAt may not precede
// creation.
func ValidateRecurrence(template models.Task) error {
	switch template.Recurrence {
	case models.RecurrenceDaily:
	case models.RecurrenceWeekly:
		if template.WeekDay == nil {
			return fmt.Errorf("%w: weekly task %s has no week day", ErrInvalidRecurrence, template.ID)
		}
		if *template.WeekDay < 0 || *template.WeekDay > 6 {
			return fmt.Errorf("%w: weekly task %s has week day %d", ErrInvalidRecurrence, template.ID, *template.WeekDay)
		}
	default:
		return fmt.Errorf("%w: task %s is not recurring", ErrInvalidRecurrence, template.ID)
	}
	if template.StoppedAt != nil && template.StoppedAt.Before(template.CreatedAt) {
		return fmt.Errorf("%w: task %s stopped before it was created", ErrInvalidRecurrence, template.ID)
	}
	return nil
}

// ShouldOccur decides whether the template produces an occurrence on the
// given day. The day must be a canonical date as returned by DateOnly; the
// template's own timestamps are reduced to days in loc. Week days follow
// the 0=Sunday..6=Saturday convention stored on the template.
func ShouldOccur(template models.Task, day time.Time, loc *time.Location) bool {
	if day.Before(DateOnly(template.CreatedAt, loc)) {
		return false
	}
	if template.StoppedAt != nil && !day.Before(DateOnly(*template.StoppedAt, loc)) {
		return false
	}

	switch template.Recurrence {
	case models.RecurrenceDaily:
		return true
	case models.RecurrenceWeekly:
		return template.WeekDay != nil && int(day.Weekday()) == *template.WeekDay
	}
	return false
}

// GenerateVirtual walks every day of [from, to] for every template and
// emits a virtual occurrence for each day the rule matches. Templates that
// fail validation are skipped with a warning so one bad record cannot blank
// the whole calendar. Output is deterministic for fixed inputs; cost is
// O(templates × days), so callers bound the range.
func GenerateVirtual(templates []models.Task, from, to time.Time, locations map[string]*time.Location, defaultLoc *time.Location) []Occurrence {
	var occurrences []Occurrence

	for _, template := range templates {
		if err := ValidateRecurrence(template); err != nil {
			slog.Warn("skipping template with invalid recurrence", "task", template.ID, "error", err)
			continue
		}

		loc := defaultLoc
		if l, ok := locations[template.ObjectID]; ok && l != nil {
			loc = l
		}

		first := DateOnly(from, loc)
		last := DateOnly(to, loc)
		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			if !ShouldOccur(template, day, loc) {
				continue
			}
			occurrences = append(occurrences, newVirtualOccurrence(template, day))
		}
	}

	return occurrences
}

// newVirtualOccurrence copies the template's descriptive fields into a
// stand-alone, non-recurring placeholder for one day.
func newVirtualOccurrence(template models.Task, day time.Time) Occurrence {
	templateID := template.ID
	scheduled := day
	snapshot := models.Task{
		ParentID:      &templateID,
		Title:         template.Title,
		Description:   template.Description,
		Priority:      template.Priority,
		ObjectID:      template.ObjectID,
		CreatedByID:   template.CreatedByID,
		AssignedToID:  template.AssignedToID,
		Recurrence:    models.RecurrenceNone,
		ScheduledDate: &scheduled,
		Status:        models.TaskStatusNew,
		CreatedAt:     day,
		UpdatedAt:     day,
	}

	return Occurrence{
		Key:           NewOccurrenceKey(template.ID, day),
		Source:        SourceVirtual,
		ScheduledDate: day,
		Frequency:     template.Recurrence,
		Task:          snapshot,
	}
}
