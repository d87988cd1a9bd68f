package services

import (
	"time"

	"github.com/Krestall88/cleaning-control-sub003/internal/models"
)

type Bucket string

const (
	BucketOverdue   Bucket = "overdue"
	BucketDueToday  Bucket = "due_today"
	BucketUpcoming  Bucket = "upcoming"
	BucketCompleted Bucket = "completed"
)

// ClassifyOccurrence derives the operational bucket of one occurrence at
// the given instant. Completed and skipped records are terminal regardless
// of their scheduled date; everything else is placed purely by comparing
// the scheduled day against "today" in loc.
func ClassifyOccurrence(occurrence Occurrence, now time.Time, loc *time.Location) Bucket {
	task := occurrence.Task
	if task.CompletedAt != nil || task.Status == models.TaskStatusCompleted || task.Status == models.TaskStatusSkipped {
		return BucketCompleted
	}

	today := DateOnly(now, loc)
	switch {
	case occurrence.ScheduledDate.Before(today):
		return BucketOverdue
	case occurrence.ScheduledDate.Equal(today):
		return BucketDueToday
	default:
		return BucketUpcoming
	}
}

type Buckets struct {
	Overdue   []Occurrence `json:"overdue"`
	DueToday  []Occurrence `json:"due_today"`
	Upcoming  []Occurrence `json:"upcoming"`
	Completed []Occurrence `json:"completed"`
}

// GroupByBucket partitions occurrences into the four operational buckets.
// Every input lands in exactly one bucket. An occurrence already classified
// (the list path stamps Bucket using its object's timezone) keeps its
// bucket; anything else is classified with loc.
func GroupByBucket(occurrences []Occurrence, now time.Time, loc *time.Location) Buckets {
	var buckets Buckets
	for _, occurrence := range occurrences {
		bucket := occurrence.Bucket
		if bucket == "" {
			bucket = ClassifyOccurrence(occurrence, now, loc)
		}
		switch bucket {
		case BucketOverdue:
			buckets.Overdue = append(buckets.Overdue, occurrence)
		case BucketDueToday:
			buckets.DueToday = append(buckets.DueToday, occurrence)
		case BucketUpcoming:
			buckets.Upcoming = append(buckets.Upcoming, occurrence)
		case BucketCompleted:
			buckets.Completed = append(buckets.Completed, occurrence)
		}
	}
	return buckets
}

// GroupByFrequency re-keys an already classified set by the recurrence
// kind of the originating template. It never changes classification.
func GroupByFrequency(occurrences []Occurrence) map[models.RecurrenceKind][]Occurrence {
	groups := make(map[models.RecurrenceKind][]Occurrence)
	for _, occurrence := range occurrences {
		groups[occurrence.Frequency] = append(groups[occurrence.Frequency], occurrence)
	}
	return groups
}
