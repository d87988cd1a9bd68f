package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Krestall88/cleaning-control-sub003/internal/middleware"
	"github.com/Krestall88/cleaning-control-sub003/internal/models"
	"github.com/Krestall88/cleaning-control-sub003/internal/repository"
	"github.com/Krestall88/cleaning-control-sub003/internal/services"
	"github.com/Krestall88/cleaning-control-sub003/internal/testutil"
)

func TestDashboard_Summary(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	ctx := context.Background()

	admin, err := repository.NewUserRepository(db).Create(ctx, models.User{OIDCSubject: "s1", Email: "a@test.com", Name: "Alice", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	objectRepo := repository.NewObjectRepository(db)
	object, err := objectRepo.Create(ctx, models.Object{Name: "Site"})
	if err != nil {
		t.Fatalf("creating object: %v", err)
	}

	taskRepo := repository.NewTaskRepository(db)
	template, err := taskRepo.Create(ctx, models.Task{
		Title: "mop lobby", ObjectID: object.ID,
		CreatedByID: admin.ID, AssignedToID: admin.ID,
		Recurrence: models.RecurrenceDaily,
	})
	if err != nil {
		t.Fatalf("creating template: %v", err)
	}

	service := services.NewOccurrenceService(taskRepo, objectRepo, time.UTC)
	today := services.DateOnly(time.Now(), time.UTC)
	if _, err := service.Complete(ctx, template.ID, today, admin.ID, "done", nil); err != nil {
		t.Fatalf("completing today's slot: %v", err)
	}

	handler := NewDashboardHandler(service, taskRepo)

	request := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	request = request.WithContext(context.WithValue(request.Context(), middleware.UserContextKey, admin))
	recorder := httptest.NewRecorder()
	handler.Summary(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		Counts           map[services.Bucket]int `json:"counts"`
		CompletedAllTime int                     `json:"completed_all_time"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if response.Counts[services.BucketCompleted] == 0 {
		t.Error("expected today's completed slot in the completed count")
	}
	if response.Counts[services.BucketUpcoming] == 0 {
		t.Error("expected upcoming slots for a daily template")
	}
	if response.CompletedAllTime != 1 {
		t.Errorf("expected 1 completed occurrence all-time, got %d", response.CompletedAllTime)
	}
}
