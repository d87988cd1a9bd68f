package models

import "time"

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDeputy  Role = "DEPUTY"
	RoleManager Role = "MANAGER"
)

type RecurrenceKind string

const (
	RecurrenceNone   RecurrenceKind = "NONE"
	RecurrenceDaily  RecurrenceKind = "DAILY"
	RecurrenceWeekly RecurrenceKind = "WEEKLY"
)

type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "NEW"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusSkipped    TaskStatus = "SKIPPED"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityUrgent TaskPriority = "URGENT"
)

type User struct {
	ID          string    `json:"id"`
	OIDCSubject string    `json:"-"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Object is a client site serviced by the company.
type Object struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	ManagerID      *string   `json:"manager_id"`
	Timezone       string    `json:"timezone"`
	RequirePhoto   bool      `json:"require_photo"`
	RequireComment bool      `json:"require_comment"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Task is a single row of the tasks table, which holds three shapes of
// record:
//
//   - a recurring template: ParentID nil, Recurrence DAILY or WEEKLY
//   - a one-off task: ParentID nil, Recurrence NONE
//   - a materialized occurrence of a template: ParentID set, Recurrence NONE
//
// A template with Recurrence WEEKLY must carry WeekDay (0=Sunday..6=Saturday).
// StoppedAt pauses recurrence: no occurrence falls on or after that day.
// Materialized occurrences and one-offs carry ScheduledDate; at most one
// occurrence exists per (ParentID, ScheduledDate) pair, enforced by a
// unique index.
type Task struct {
	ID          string       `json:"id"`
	ParentID    *string      `json:"parent_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority"`

	ObjectID     string `json:"object_id"`
	CreatedByID  string `json:"created_by_id"`
	AssignedToID string `json:"assigned_to_id"`

	Recurrence RecurrenceKind `json:"recurrence"`
	WeekDay    *int           `json:"week_day"`
	StoppedAt  *time.Time     `json:"stopped_at"`

	ScheduledDate     *time.Time `json:"scheduled_date"`
	Status            TaskStatus `json:"status"`
	CompletedAt       *time.Time `json:"completed_at"`
	CompletedByID     *string    `json:"completed_by_id"`
	CompletionComment string     `json:"completion_comment"`
	Photos            []string   `json:"photos"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTemplate reports whether the task is a recurring template row.
func (t Task) IsTemplate() bool {
	return t.ParentID == nil && t.Recurrence != RecurrenceNone
}
