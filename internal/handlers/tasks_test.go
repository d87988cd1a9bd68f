package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Krestall88/cleaning-control-sub003/internal/middleware"
	"github.com/Krestall88/cleaning-control-sub003/internal/models"
	"github.com/Krestall88/cleaning-control-sub003/internal/repository"
	"github.com/Krestall88/cleaning-control-sub003/internal/services"
	"github.com/Krestall88/cleaning-control-sub003/internal/testutil"
	"github.com/go-chi/chi/v5"
)

type tasksFixture struct {
	db          *sql.DB
	taskRepo    repository.TaskRepository
	occurrences *services.OccurrenceService
	router      *chi.Mux
	admin       models.User
	manager     models.User
	object      models.Object
}

func newTasksFixture(t *testing.T) *tasksFixture {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	ctx := context.Background()

	userRepo := repository.NewUserRepository(db)
	admin, err := userRepo.Create(ctx, models.User{OIDCSubject: "sub-admin", Email: "admin@example.com", Name: "Admin", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("creating admin: %v", err)
	}
	manager, err := userRepo.Create(ctx, models.User{OIDCSubject: "sub-manager", Email: "manager@example.com", Name: "Manager"})
	if err != nil {
		t.Fatalf("creating manager: %v", err)
	}

	objectRepo := repository.NewObjectRepository(db)
	object, err := objectRepo.Create(ctx, models.Object{Name: "Business center", ManagerID: &manager.ID})
	if err != nil {
		t.Fatalf("creating object: %v", err)
	}

	taskRepo := repository.NewTaskRepository(db)
	occurrenceService := services.NewOccurrenceService(taskRepo, objectRepo, time.UTC)
	handler := NewTasksHandler(taskRepo, objectRepo, occurrenceService)

	router := chi.NewRouter()
	router.Get("/api/tasks/calendar", handler.Calendar)
	router.Post("/api/tasks", handler.Create)
	router.Delete("/api/tasks/{id}", handler.Delete)
	router.Post("/api/tasks/{id}/stop", handler.Stop)
	router.Post("/api/tasks/{id}/resume", handler.Resume)
	router.Post("/api/tasks/{id}/complete", handler.CompleteTask)
	router.Post("/api/tasks/{id}/occurrences/{date}/complete", handler.CompleteOccurrence)
	router.Post("/api/tasks/{id}/occurrences/{date}/skip", handler.SkipOccurrence)

	return &tasksFixture{
		db:          db,
		taskRepo:    taskRepo,
		occurrences: occurrenceService,
		router:      router,
		admin:       admin,
		manager:     manager,
		object:      object,
	}
}

func (fixture *tasksFixture) do(method, target, body string, user models.User) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	request = request.WithContext(context.WithValue(request.Context(), middleware.UserContextKey, user))
	recorder := httptest.NewRecorder()
	fixture.router.ServeHTTP(recorder, request)
	return recorder
}

func (fixture *tasksFixture) createTemplate(t *testing.T, recurrence models.RecurrenceKind, weekDay *int) models.Task {
	t.Helper()
	template, err := fixture.taskRepo.Create(context.Background(), models.Task{
		Title:        "wash windows",
		ObjectID:     fixture.object.ID,
		CreatedByID:  fixture.admin.ID,
		AssignedToID: fixture.manager.ID,
		Recurrence:   recurrence,
		WeekDay:      weekDay,
	})
	if err != nil {
		t.Fatalf("creating template: %v", err)
	}
	return template
}

func TestCreateTask_OneOffRequiresDate(t *testing.T) {
	fixture := newTasksFixture(t)

	body := `{"title": "deep clean", "object_id": "` + fixture.object.ID + `"}`
	recorder := fixture.do(http.MethodPost, "/api/tasks", body, fixture.admin)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without scheduled_date, got %d", recorder.Code)
	}
}

func TestCreateTask_WeeklyRequiresWeekDay(t *testing.T) {
	fixture := newTasksFixture(t)

	body := `{"title": "wash windows", "object_id": "` + fixture.object.ID + `", "recurrence": "WEEKLY"}`
	recorder := fixture.do(http.MethodPost, "/api/tasks", body, fixture.admin)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without week_day, got %d", recorder.Code)
	}
}

func TestCreateTask_Daily(t *testing.T) {
	fixture := newTasksFixture(t)

	body := `{"title": "mop lobby", "object_id": "` + fixture.object.ID + `", "recurrence": "DAILY"}`
	recorder := fixture.do(http.MethodPost, "/api/tasks", body, fixture.admin)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var created models.Task
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !created.IsTemplate() {
		t.Error("expected a recurring template")
	}
	if created.CreatedByID != fixture.admin.ID {
		t.Errorf("expected creator %s, got %s", fixture.admin.ID, created.CreatedByID)
	}
}

func TestCreateTask_UnknownRecurrence(t *testing.T) {
	fixture := newTasksFixture(t)

	body := `{"title": "x", "object_id": "` + fixture.object.ID + `", "recurrence": "MONTHLY"}`
	recorder := fixture.do(http.MethodPost, "/api/tasks", body, fixture.admin)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported recurrence, got %d", recorder.Code)
	}
}

func TestSkipOccurrence_RequiresComment(t *testing.T) {
	fixture := newTasksFixture(t)
	template := fixture.createTemplate(t, models.RecurrenceDaily, nil)

	recorder := fixture.do(http.MethodPost, "/api/tasks/"+template.ID+"/occurrences/2025-06-10/skip", "{}", fixture.admin)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a skip without comment, got %d", recorder.Code)
	}

	recorder = fixture.do(http.MethodPost, "/api/tasks/"+template.ID+"/occurrences/2025-06-10/skip", `{"comment": "site closed"}`, fixture.admin)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 with comment, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var record models.Task
	if err := json.Unmarshal(recorder.Body.Bytes(), &record); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if record.Status != models.TaskStatusSkipped {
		t.Errorf("expected SKIPPED, got %s", record.Status)
	}
}

func TestCompleteOccurrence_RequirePhoto(t *testing.T) {
	fixture := newTasksFixture(t)
	ctx := context.Background()

	objectRepo := repository.NewObjectRepository(fixture.db)
	strict, err := objectRepo.Create(ctx, models.Object{Name: "Strict site", ManagerID: &fixture.manager.ID, RequirePhoto: true})
	if err != nil {
		t.Fatalf("creating object: %v", err)
	}
	template, err := fixture.taskRepo.Create(ctx, models.Task{
		Title: "wash windows", ObjectID: strict.ID,
		CreatedByID: fixture.admin.ID, AssignedToID: fixture.manager.ID,
		Recurrence: models.RecurrenceDaily,
	})
	if err != nil {
		t.Fatalf("creating template: %v", err)
	}

	recorder := fixture.do(http.MethodPost, "/api/tasks/"+template.ID+"/occurrences/2025-06-10/complete", "{}", fixture.manager)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without photo, got %d", recorder.Code)
	}

	recorder = fixture.do(http.MethodPost, "/api/tasks/"+template.ID+"/occurrences/2025-06-10/complete", `{"photos": ["after.jpg"]}`, fixture.manager)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 with photo, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestCompleteOccurrence_MaterializesRecord(t *testing.T) {
	fixture := newTasksFixture(t)
	template := fixture.createTemplate(t, models.RecurrenceDaily, nil)

	recorder := fixture.do(http.MethodPost, "/api/tasks/"+template.ID+"/occurrences/2025-06-10/complete", `{"comment": "done"}`, fixture.admin)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	day := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	record, err := fixture.taskRepo.FindOccurrenceByTemplateAndDate(context.Background(), template.ID, day)
	if err != nil {
		t.Fatalf("expected a persisted occurrence: %v", err)
	}
	if record.Status != models.TaskStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", record.Status)
	}
	if record.CompletedByID == nil || *record.CompletedByID != fixture.admin.ID {
		t.Error("expected the acting user to be recorded")
	}
}

func TestCompleteOccurrence_ForeignManagerForbidden(t *testing.T) {
	fixture := newTasksFixture(t)
	template := fixture.createTemplate(t, models.RecurrenceDaily, nil)

	userRepo := repository.NewUserRepository(fixture.db)
	other, err := userRepo.Create(context.Background(), models.User{OIDCSubject: "sub-other", Email: "other@example.com", Name: "Other"})
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}

	recorder := fixture.do(http.MethodPost, "/api/tasks/"+template.ID+"/occurrences/2025-06-10/complete", "{}", other)
	if recorder.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a foreign manager, got %d", recorder.Code)
	}
}

func TestCompleteOccurrence_UnknownTemplate(t *testing.T) {
	fixture := newTasksFixture(t)

	recorder := fixture.do(http.MethodPost, "/api/tasks/missing/occurrences/2025-06-10/complete", "{}", fixture.admin)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", recorder.Code)
	}
}

func TestCompleteTask_RejectsTemplates(t *testing.T) {
	fixture := newTasksFixture(t)
	template := fixture.createTemplate(t, models.RecurrenceDaily, nil)

	recorder := fixture.do(http.MethodPost, "/api/tasks/"+template.ID+"/complete", "{}", fixture.admin)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 completing a template directly, got %d", recorder.Code)
	}
}

func TestCompleteTask_OneOff(t *testing.T) {
	fixture := newTasksFixture(t)
	ctx := context.Background()

	scheduled := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	oneOff, err := fixture.taskRepo.Create(ctx, models.Task{
		Title: "deep clean", ObjectID: fixture.object.ID,
		CreatedByID: fixture.admin.ID, AssignedToID: fixture.manager.ID,
		ScheduledDate: &scheduled,
	})
	if err != nil {
		t.Fatalf("creating one-off: %v", err)
	}

	recorder := fixture.do(http.MethodPost, "/api/tasks/"+oneOff.ID+"/complete", `{"comment": "spotless"}`, fixture.manager)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	found, err := fixture.taskRepo.FindByID(ctx, oneOff.ID)
	if err != nil {
		t.Fatalf("finding task: %v", err)
	}
	if found.Status != models.TaskStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", found.Status)
	}
}

func TestStopAndResume(t *testing.T) {
	fixture := newTasksFixture(t)
	template := fixture.createTemplate(t, models.RecurrenceDaily, nil)

	recorder := fixture.do(http.MethodPost, "/api/tasks/"+template.ID+"/stop", "", fixture.admin)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 stopping, got %d", recorder.Code)
	}
	found, _ := fixture.taskRepo.FindByID(context.Background(), template.ID)
	if found.StoppedAt == nil {
		t.Fatal("expected StoppedAt to be set")
	}

	recorder = fixture.do(http.MethodPost, "/api/tasks/"+template.ID+"/resume", "", fixture.admin)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 resuming, got %d", recorder.Code)
	}
	found, _ = fixture.taskRepo.FindByID(context.Background(), template.ID)
	if found.StoppedAt != nil {
		t.Fatal("expected StoppedAt to be cleared")
	}
}

func TestStop_RejectsOneOff(t *testing.T) {
	fixture := newTasksFixture(t)
	ctx := context.Background()

	scheduled := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	oneOff, _ := fixture.taskRepo.Create(ctx, models.Task{
		Title: "deep clean", ObjectID: fixture.object.ID,
		CreatedByID: fixture.admin.ID, AssignedToID: fixture.manager.ID,
		ScheduledDate: &scheduled,
	})

	recorder := fixture.do(http.MethodPost, "/api/tasks/"+oneOff.ID+"/stop", "", fixture.admin)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 stopping a one-off, got %d", recorder.Code)
	}
}

func TestCalendar_ManagerCannotReadForeignObject(t *testing.T) {
	fixture := newTasksFixture(t)
	ctx := context.Background()

	objectRepo := repository.NewObjectRepository(fixture.db)
	foreign, err := objectRepo.Create(ctx, models.Object{Name: "Foreign site"})
	if err != nil {
		t.Fatalf("creating object: %v", err)
	}

	recorder := fixture.do(http.MethodGet, "/api/tasks/calendar?object_id="+foreign.ID, "", fixture.manager)
	if recorder.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", recorder.Code)
	}

	recorder = fixture.do(http.MethodGet, "/api/tasks/calendar?object_id="+fixture.object.ID, "", fixture.manager)
	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200 for the manager's own object, got %d", recorder.Code)
	}
}

func TestCalendar_BadRange(t *testing.T) {
	fixture := newTasksFixture(t)

	recorder := fixture.do(http.MethodGet, "/api/tasks/calendar?from=2025-01-01&to=2024-12-01", "", fixture.admin)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for reversed range, got %d", recorder.Code)
	}

	recorder = fixture.do(http.MethodGet, "/api/tasks/calendar?from=2024-01-01&to=2026-01-01", "", fixture.admin)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an oversized range, got %d", recorder.Code)
	}

	recorder = fixture.do(http.MethodGet, "/api/tasks/calendar?from=not-a-date", "", fixture.admin)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed date, got %d", recorder.Code)
	}
}

func TestCalendar_ReturnsBuckets(t *testing.T) {
	fixture := newTasksFixture(t)
	fixture.createTemplate(t, models.RecurrenceDaily, nil)

	recorder := fixture.do(http.MethodGet, "/api/tasks/calendar", "", fixture.admin)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		Occurrences []services.Occurrence                           `json:"occurrences"`
		Buckets     services.Buckets                                `json:"buckets"`
		Frequencies map[models.RecurrenceKind][]services.Occurrence `json:"frequencies"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(response.Occurrences) == 0 {
		t.Fatal("expected occurrences for a daily template")
	}
	if len(response.Frequencies[models.RecurrenceDaily]) == 0 {
		t.Error("expected a daily frequency group")
	}
	if len(response.Buckets.DueToday) == 0 {
		t.Error("expected today's slot in the due_today bucket")
	}
}

func TestCalendar_BucketsFollowServiceClock(t *testing.T) {
	fixture := newTasksFixture(t)
	fixture.createTemplate(t, models.RecurrenceDaily, nil)

	// Pin the clock far ahead of the wall clock so a drift back to
	// time.Now() inside the handler would misclassify every slot.
	fixture.occurrences.SetNow(func() time.Time {
		return time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)
	})

	recorder := fixture.do(http.MethodGet, "/api/tasks/calendar?from=2030-06-10&to=2030-06-14", "", fixture.admin)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		Buckets services.Buckets `json:"buckets"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	overdueSlots := 0
	for _, occurrence := range response.Buckets.Overdue {
		if occurrence.Source != services.SourceTemplate {
			overdueSlots++
		}
	}
	if overdueSlots != 5 {
		t.Errorf("expected 5 overdue slots relative to the pinned clock, got %d", overdueSlots)
	}
	if len(response.Buckets.Upcoming) != 0 || len(response.Buckets.DueToday) != 0 {
		t.Errorf("expected no upcoming or due_today slots, got %d and %d",
			len(response.Buckets.Upcoming), len(response.Buckets.DueToday))
	}

	recorder = fixture.do(http.MethodGet, "/api/tasks/calendar?from=2030-06-15&to=2030-06-15", "", fixture.admin)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	response.Buckets = services.Buckets{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(response.Buckets.DueToday) != 1 {
		t.Errorf("expected the pinned day's slot in due_today, got %d", len(response.Buckets.DueToday))
	}
}

func TestDeleteTask_RemovesTemplateAndOccurrences(t *testing.T) {
	fixture := newTasksFixture(t)
	ctx := context.Background()
	template := fixture.createTemplate(t, models.RecurrenceDaily, nil)

	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	occurrence, err := fixture.taskRepo.Create(ctx, models.Task{
		Title:         template.Title,
		ObjectID:      fixture.object.ID,
		CreatedByID:   fixture.admin.ID,
		AssignedToID:  fixture.manager.ID,
		ParentID:      &template.ID,
		ScheduledDate: &day,
	})
	if err != nil {
		t.Fatalf("creating occurrence: %v", err)
	}

	recorder := fixture.do(http.MethodDelete, "/api/tasks/"+template.ID, "", fixture.admin)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", recorder.Code, recorder.Body.String())
	}

	if _, err := fixture.taskRepo.FindByID(ctx, template.ID); err == nil {
		t.Error("expected the template deleted")
	}
	if _, err := fixture.taskRepo.FindByID(ctx, occurrence.ID); err == nil {
		t.Error("expected the materialized occurrence deleted")
	}
}

func TestDeleteTask_UnknownID(t *testing.T) {
	fixture := newTasksFixture(t)

	recorder := fixture.do(http.MethodDelete, "/api/tasks/missing", "", fixture.admin)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown task, got %d", recorder.Code)
	}
}
