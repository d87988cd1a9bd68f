package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Krestall88/cleaning-control-sub003/internal/middleware"
	"github.com/Krestall88/cleaning-control-sub003/internal/models"
	"github.com/Krestall88/cleaning-control-sub003/internal/repository"
	"github.com/Krestall88/cleaning-control-sub003/internal/services"
	"github.com/go-chi/chi/v5"
)

const dateLayout = "2006-01-02"

type TasksHandler struct {
	taskRepo    repository.TaskRepository
	objectRepo  repository.ObjectRepository
	occurrences *services.OccurrenceService
}

func NewTasksHandler(
	taskRepo repository.TaskRepository,
	objectRepo repository.ObjectRepository,
	occurrences *services.OccurrenceService,
) *TasksHandler {
	return &TasksHandler{
		taskRepo:    taskRepo,
		objectRepo:  objectRepo,
		occurrences: occurrences,
	}
}

type calendarResponse struct {
	Occurrences []services.Occurrence                           `json:"occurrences"`
	Buckets     services.Buckets                                `json:"buckets"`
	Frequencies map[models.RecurrenceKind][]services.Occurrence `json:"frequencies"`
}

// Calendar returns the merged occurrence view for a range. Managers are
// always scoped to their own objects.
func (handler *TasksHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	scope := services.ListScope{}
	if objectID := r.URL.Query().Get("object_id"); objectID != "" {
		if user.Role == models.RoleManager {
			object, err := handler.objectRepo.FindByID(ctx, objectID)
			if err != nil || object.ManagerID == nil || *object.ManagerID != user.ID {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "object belongs to another manager"})
				return
			}
		}
		scope.ObjectID = &objectID
	} else if user.Role == models.RoleManager {
		scope.ManagerID = &user.ID
	}
	if assignedTo := r.URL.Query().Get("assigned_to"); assignedTo != "" {
		scope.AssignedToID = &assignedTo
	}

	var from, to time.Time
	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse(dateLayout, raw); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be YYYY-MM-DD"})
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse(dateLayout, raw); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to must be YYYY-MM-DD"})
			return
		}
	}

	occurrences, err := handler.occurrences.List(ctx, scope, from, to)
	if err != nil {
		if errors.Is(err, services.ErrRangeTooLarge) || errors.Is(err, services.ErrInvalidRange) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("listing occurrences", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load calendar"})
		return
	}

	writeJSON(w, http.StatusOK, calendarResponse{
		Occurrences: occurrences,
		Buckets:     services.GroupByBucket(occurrences, handler.occurrences.Now(), handler.occurrences.Location()),
		Frequencies: services.GroupByFrequency(occurrences),
	})
}

type createTaskRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Priority      string `json:"priority"`
	ObjectID      string `json:"object_id"`
	AssignedToID  string `json:"assigned_to_id"`
	Recurrence    string `json:"recurrence"`
	WeekDay       *int   `json:"week_day"`
	ScheduledDate string `json:"scheduled_date"`
}

func (handler *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	var request createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if strings.TrimSpace(request.Title) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}

	if _, err := handler.objectRepo.FindByID(ctx, request.ObjectID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown object"})
		return
	}

	task := models.Task{
		Title:        strings.TrimSpace(request.Title),
		Description:  request.Description,
		Priority:     models.TaskPriority(request.Priority),
		ObjectID:     request.ObjectID,
		CreatedByID:  user.ID,
		AssignedToID: request.AssignedToID,
		Recurrence:   models.RecurrenceKind(request.Recurrence),
		WeekDay:      request.WeekDay,
	}
	if task.AssignedToID == "" {
		task.AssignedToID = user.ID
	}
	if task.Recurrence == "" {
		task.Recurrence = models.RecurrenceNone
	}

	switch task.Recurrence {
	case models.RecurrenceNone:
		if request.ScheduledDate == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "scheduled_date is required for one-off tasks"})
			return
		}
		date, err := time.Parse(dateLayout, request.ScheduledDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "scheduled_date must be YYYY-MM-DD"})
			return
		}
		task.ScheduledDate = &date
	case models.RecurrenceDaily, models.RecurrenceWeekly:
		task.CreatedAt = time.Now()
		if err := services.ValidateRecurrence(task); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recurrence must be NONE, DAILY or WEEKLY"})
		return
	}

	created, err := handler.taskRepo.Create(ctx, task)
	if err != nil {
		slog.Error("creating task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create task"})
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Delete removes a task; for a recurring task its materialized occurrences
// go with it.
func (handler *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	task, err := handler.taskRepo.FindByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}

	if err := handler.taskRepo.Delete(ctx, task.ID); err != nil {
		slog.Error("deleting task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete task"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (handler *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	task, err := handler.taskRepo.FindByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Stop pauses a recurring task: occurrences stop falling on or after today.
func (handler *TasksHandler) Stop(w http.ResponseWriter, r *http.Request) {
	handler.setStopped(w, r, true)
}

// Resume clears the stop mark so generation continues.
func (handler *TasksHandler) Resume(w http.ResponseWriter, r *http.Request) {
	handler.setStopped(w, r, false)
}

func (handler *TasksHandler) setStopped(w http.ResponseWriter, r *http.Request, stop bool) {
	ctx := r.Context()
	task, err := handler.taskRepo.FindByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	if !task.IsTemplate() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task is not recurring"})
		return
	}

	if stop {
		now := time.Now()
		task.StoppedAt = &now
	} else {
		task.StoppedAt = nil
	}

	if err := handler.taskRepo.Update(ctx, task); err != nil {
		slog.Error("updating task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update task"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type occurrenceActionRequest struct {
	Comment string   `json:"comment"`
	Photos  []string `json:"photos"`
}

// CompleteOccurrence materializes and completes the slot of a recurring
// task. Object-level completion requirements are checked here, before the
// materializer runs.
func (handler *TasksHandler) CompleteOccurrence(w http.ResponseWriter, r *http.Request) {
	handler.actOnOccurrence(w, r, models.TaskStatusCompleted)
}

// SkipOccurrence marks the slot as skipped; a comment explaining the skip
// is always required.
func (handler *TasksHandler) SkipOccurrence(w http.ResponseWriter, r *http.Request) {
	handler.actOnOccurrence(w, r, models.TaskStatusSkipped)
}

func (handler *TasksHandler) actOnOccurrence(w http.ResponseWriter, r *http.Request, status models.TaskStatus) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)
	templateID := chi.URLParam(r, "id")

	date, err := time.Parse(dateLayout, chi.URLParam(r, "date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}

	var request occurrenceActionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	request.Comment = strings.TrimSpace(request.Comment)

	template, err := handler.taskRepo.FindByID(ctx, templateID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}

	object, err := handler.objectRepo.FindByID(ctx, template.ObjectID)
	if err != nil {
		slog.Error("loading object for completion", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load object"})
		return
	}
	if user.Role == models.RoleManager && (object.ManagerID == nil || *object.ManagerID != user.ID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "object belongs to another manager"})
		return
	}

	if status == models.TaskStatusSkipped && request.Comment == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a comment is required to skip"})
		return
	}
	if status == models.TaskStatusCompleted {
		if object.RequirePhoto && len(request.Photos) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "this object requires at least one photo"})
			return
		}
		if object.RequireComment && request.Comment == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "this object requires a completion comment"})
			return
		}
	}

	var record models.Task
	if status == models.TaskStatusSkipped {
		record, err = handler.occurrences.Skip(ctx, templateID, date, user.ID, request.Comment)
	} else {
		record, err = handler.occurrences.Complete(ctx, templateID, date, user.ID, request.Comment, request.Photos)
	}
	if err != nil {
		if errors.Is(err, services.ErrTemplateNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "occurrence is no longer schedulable"})
			return
		}
		slog.Error("materializing occurrence", "template", templateID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update occurrence"})
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// CompleteTask completes a one-off task or an already materialized
// occurrence addressed by its own id.
func (handler *TasksHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	var request occurrenceActionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	task, err := handler.taskRepo.FindByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
			return
		}
		slog.Error("loading task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load task"})
		return
	}
	if task.IsTemplate() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recurring tasks are completed per occurrence"})
		return
	}

	object, err := handler.objectRepo.FindByID(ctx, task.ObjectID)
	if err == nil && user.Role == models.RoleManager && (object.ManagerID == nil || *object.ManagerID != user.ID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "object belongs to another manager"})
		return
	}

	task.Status = models.TaskStatusCompleted
	now := time.Now()
	task.CompletedAt = &now
	task.CompletedByID = &user.ID
	if comment := strings.TrimSpace(request.Comment); comment != "" {
		task.CompletionComment = comment
	}
	if len(request.Photos) > 0 {
		task.Photos = request.Photos
	}

	if err := handler.taskRepo.Update(ctx, task); err != nil {
		slog.Error("updating task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update task"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}
