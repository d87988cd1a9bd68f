package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Krestall88/cleaning-control-sub003/internal/models"
	"github.com/Krestall88/cleaning-control-sub003/internal/repository"
)

var (
	ErrTemplateNotFound = errors.New("recurring task not found")
	ErrRangeTooLarge    = errors.New("date range too large")
	ErrInvalidRange     = errors.New("range end precedes range start")
)

const (
	// Default window when the caller does not bound the range: enough
	// backlog for overdue review plus a planning horizon.
	defaultRangeBack    = 30
	defaultRangeForward = 90

	// Hard cap on generation cost.
	maxRangeDays = 366
)

// ListScope narrows the calendar view: a single object, a single assignee,
// or every object of one manager.
type ListScope struct {
	ObjectID     *string
	AssignedToID *string
	ManagerID    *string
}

// OccurrenceChange is the mutation applied when an occurrence is acted
// upon. Business validation (mandatory comment for a skip, photo
// requirements of the object) happens in the caller before this point.
type OccurrenceChange struct {
	Status  models.TaskStatus
	Comment string
	Photos  []string
	ByID    string
}

// OccurrenceService merges virtual and materialized occurrences into one
// calendar view and owns the materialization path.
type OccurrenceService struct {
	taskRepo   repository.TaskRepository
	objectRepo repository.ObjectRepository
	location   *time.Location
	now        func() time.Time
}

func NewOccurrenceService(taskRepo repository.TaskRepository, objectRepo repository.ObjectRepository, location *time.Location) *OccurrenceService {
	return &OccurrenceService{
		taskRepo:   taskRepo,
		objectRepo: objectRepo,
		location:   location,
		now:        time.Now,
	}
}

// SetNow overrides the clock. Tests use this to pin "today".
func (service *OccurrenceService) SetNow(now func() time.Time) {
	service.now = now
}

// Now reads the service clock. Callers classifying occurrences must use
// this instant so their view agrees with List.
func (service *OccurrenceService) Now() time.Time {
	return service.now()
}

// Location returns the service-wide fallback timezone.
func (service *OccurrenceService) Location() *time.Location {
	return service.location
}

// List returns the merged calendar for the scope and range: virtual
// occurrences of every recurring task in scope, overridden by materialized
// records where they exist, plus one-off tasks and the recurring
// definitions themselves. Every entry carries its classified bucket. No
// key appears twice.
func (service *OccurrenceService) List(ctx context.Context, scope ListScope, from, to time.Time) ([]Occurrence, error) {
	now := service.now()
	if from.IsZero() {
		from = now.AddDate(0, 0, -defaultRangeBack)
	}
	if to.IsZero() {
		to = now.AddDate(0, 0, defaultRangeForward)
	}
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%w: %s to %s", ErrRangeTooLarge, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	objects, err := service.objectsInScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	locations := service.objectLocations(objects)

	filter := repository.TaskFilter{
		ObjectID:     scope.ObjectID,
		AssignedToID: scope.AssignedToID,
	}
	if scope.ManagerID != nil {
		if len(objects) == 0 {
			return nil, nil
		}
		for _, object := range objects {
			filter.ObjectIDs = append(filter.ObjectIDs, object.ID)
		}
	}

	templates, err := service.taskRepo.FindTemplates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("loading recurring tasks: %w", err)
	}

	fromDay := DateOnly(from, service.location)
	toDay := DateOnly(to, service.location)

	materialized, err := service.taskRepo.FindOccurrences(ctx, filter, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("loading materialized occurrences: %w", err)
	}

	oneOffs, err := service.taskRepo.FindOneOffs(ctx, filter, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("loading one-off tasks: %w", err)
	}

	virtual := GenerateVirtual(templates, from, to, locations, service.location)

	materializedByKey := make(map[OccurrenceKey]models.Task, len(materialized))
	for _, record := range materialized {
		if record.ParentID == nil || record.ScheduledDate == nil {
			continue
		}
		materializedByKey[NewOccurrenceKey(*record.ParentID, *record.ScheduledDate)] = record
	}

	occurrences := make([]Occurrence, 0, len(virtual)+len(oneOffs)+len(templates))
	seen := make(map[OccurrenceKey]bool, len(virtual))

	for _, placeholder := range virtual {
		if record, ok := materializedByKey[placeholder.Key]; ok {
			occurrences = append(occurrences, Occurrence{
				Key:           placeholder.Key,
				Source:        SourceMaterialized,
				ScheduledDate: placeholder.ScheduledDate,
				Frequency:     placeholder.Frequency,
				Task:          record,
			})
		} else {
			occurrences = append(occurrences, placeholder)
		}
		seen[placeholder.Key] = true
	}

	// Records materialized for dates the rule no longer produces (a
	// template stopped after the fact) still belong to the view.
	frequencyByTemplate := make(map[string]models.RecurrenceKind, len(templates))
	for _, template := range templates {
		frequencyByTemplate[template.ID] = template.Recurrence
	}
	for key, record := range materializedByKey {
		if seen[key] {
			continue
		}
		occurrences = append(occurrences, Occurrence{
			Key:           key,
			Source:        SourceMaterialized,
			ScheduledDate: *record.ScheduledDate,
			Frequency:     frequencyByTemplate[*record.ParentID],
			Task:          record,
		})
	}

	for _, task := range oneOffs {
		occurrences = append(occurrences, Occurrence{
			Key:           NewOccurrenceKey(task.ID, *task.ScheduledDate),
			Source:        SourceOneOff,
			ScheduledDate: *task.ScheduledDate,
			Frequency:     models.RecurrenceNone,
			Task:          task,
		})
	}

	// Definition rows are keyed by task id alone so they can never
	// collide with a slot of their own creation day.
	for _, template := range templates {
		created := DateOnly(template.CreatedAt, service.locationFor(locations, template.ObjectID))
		occurrences = append(occurrences, Occurrence{
			Key:           OccurrenceKey{TaskID: template.ID},
			Source:        SourceTemplate,
			ScheduledDate: created,
			Frequency:     template.Recurrence,
			Task:          template,
		})
	}

	for i := range occurrences {
		loc := service.locationFor(locations, occurrences[i].Task.ObjectID)
		occurrences[i].Bucket = ClassifyOccurrence(occurrences[i], now, loc)
	}

	return occurrences, nil
}

// Materialize turns the (templateID, date) slot into a persisted record,
// or updates the record if the slot was materialized before. A concurrent
// create racing on the unique index is retried as an update, so callers
// never observe a duplicate-key failure.
func (service *OccurrenceService) Materialize(ctx context.Context, templateID string, date time.Time, change OccurrenceChange) (models.Task, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	existing, err := service.taskRepo.FindOccurrenceByTemplateAndDate(ctx, templateID, day)
	if err == nil {
		return service.applyAndUpdate(ctx, existing, change)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, err
	}

	template, err := service.taskRepo.FindByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Task{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
		}
		return models.Task{}, err
	}
	if !template.IsTemplate() {
		return models.Task{}, fmt.Errorf("%w: %s is not a recurring task", ErrTemplateNotFound, templateID)
	}

	occurrence := models.Task{
		ParentID:      &template.ID,
		Title:         template.Title,
		Description:   template.Description,
		Priority:      template.Priority,
		ObjectID:      template.ObjectID,
		CreatedByID:   template.CreatedByID,
		AssignedToID:  template.AssignedToID,
		Recurrence:    models.RecurrenceNone,
		ScheduledDate: &day,
	}
	service.applyChange(&occurrence, change)

	created, err := service.taskRepo.Create(ctx, occurrence)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, repository.ErrDuplicateOccurrence) {
		return models.Task{}, err
	}

	// Lost a create race; the winner's record is authoritative.
	slog.Info("occurrence already materialized concurrently, retrying as update", "template", templateID, "date", day.Format("2006-01-02"))
	existing, err = service.taskRepo.FindOccurrenceByTemplateAndDate(ctx, templateID, day)
	if err != nil {
		return models.Task{}, fmt.Errorf("re-reading occurrence after duplicate: %w", err)
	}
	return service.applyAndUpdate(ctx, existing, change)
}

// Complete marks the occurrence of the given day as done, materializing it
// if needed.
func (service *OccurrenceService) Complete(ctx context.Context, templateID string, date time.Time, userID, comment string, photos []string) (models.Task, error) {
	return service.Materialize(ctx, templateID, date, OccurrenceChange{
		Status:  models.TaskStatusCompleted,
		Comment: comment,
		Photos:  photos,
		ByID:    userID,
	})
}

// Skip marks the occurrence as skipped. The mandatory comment is enforced
// by the HTTP layer before this call.
func (service *OccurrenceService) Skip(ctx context.Context, templateID string, date time.Time, userID, comment string) (models.Task, error) {
	return service.Materialize(ctx, templateID, date, OccurrenceChange{
		Status:  models.TaskStatusSkipped,
		Comment: comment,
		ByID:    userID,
	})
}

// MaterializeToday pre-creates today's occurrences with status NEW so the
// morning task lists are backed by concrete records. Already materialized
// slots are left untouched; the pass is idempotent.
func (service *OccurrenceService) MaterializeToday(ctx context.Context) error {
	templates, err := service.taskRepo.FindTemplates(ctx, repository.TaskFilter{})
	if err != nil {
		return fmt.Errorf("loading recurring tasks: %w", err)
	}

	objects, err := service.objectRepo.FindAll(ctx, repository.ObjectFilter{})
	if err != nil {
		return fmt.Errorf("loading objects: %w", err)
	}
	locations := service.objectLocations(objects)

	now := service.now()
	var materialized int
	for _, template := range templates {
		if err := ValidateRecurrence(template); err != nil {
			slog.Warn("skipping template with invalid recurrence", "task", template.ID, "error", err)
			continue
		}
		loc := service.locationFor(locations, template.ObjectID)
		today := DateOnly(now, loc)
		if !ShouldOccur(template, today, loc) {
			continue
		}

		_, err := service.taskRepo.FindOccurrenceByTemplateAndDate(ctx, template.ID, today)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Error("checking occurrence", "task", template.ID, "error", err)
			continue
		}

		if _, err := service.Materialize(ctx, template.ID, today, OccurrenceChange{Status: models.TaskStatusNew}); err != nil {
			slog.Error("materializing today's occurrence", "task", template.ID, "error", err)
			continue
		}
		materialized++
	}

	if materialized > 0 {
		slog.Info("materialized today's occurrences", "count", materialized)
	}
	return nil
}

func (service *OccurrenceService) applyAndUpdate(ctx context.Context, task models.Task, change OccurrenceChange) (models.Task, error) {
	service.applyChange(&task, change)
	if err := service.taskRepo.Update(ctx, task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (service *OccurrenceService) applyChange(task *models.Task, change OccurrenceChange) {
	if change.Status != "" {
		task.Status = change.Status
	}
	if change.Comment != "" {
		task.CompletionComment = change.Comment
	}
	if len(change.Photos) > 0 {
		task.Photos = change.Photos
	}

	switch task.Status {
	case models.TaskStatusCompleted, models.TaskStatusSkipped:
		if task.CompletedAt == nil {
			now := service.now()
			task.CompletedAt = &now
		}
		if change.ByID != "" {
			task.CompletedByID = &change.ByID
		}
	default:
		task.CompletedAt = nil
		task.CompletedByID = nil
	}
}

func (service *OccurrenceService) objectsInScope(ctx context.Context, scope ListScope) ([]models.Object, error) {
	if scope.ObjectID != nil {
		object, err := service.objectRepo.FindByID(ctx, *scope.ObjectID)
		if err != nil {
			return nil, fmt.Errorf("loading object: %w", err)
		}
		return []models.Object{object}, nil
	}

	filter := repository.ObjectFilter{ManagerID: scope.ManagerID}
	objects, err := service.objectRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("loading objects: %w", err)
	}
	return objects, nil
}

// objectLocations resolves each object's configured timezone. Unset or
// broken timezones fall back to the service-wide location.
func (service *OccurrenceService) objectLocations(objects []models.Object) map[string]*time.Location {
	locations := make(map[string]*time.Location, len(objects))
	for _, object := range objects {
		if object.Timezone == "" {
			continue
		}
		loc, err := time.LoadLocation(object.Timezone)
		if err != nil {
			slog.Warn("object has invalid timezone", "object", object.ID, "timezone", object.Timezone)
			continue
		}
		locations[object.ID] = loc
	}
	return locations
}

func (service *OccurrenceService) locationFor(locations map[string]*time.Location, objectID string) *time.Location {
	if loc, ok := locations[objectID]; ok {
		return loc
	}
	return service.location
}
