package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Krestall88/cleaning-control-sub003/internal/middleware"
	"github.com/Krestall88/cleaning-control-sub003/internal/models"
	"github.com/Krestall88/cleaning-control-sub003/internal/repository"
	"github.com/Krestall88/cleaning-control-sub003/internal/services"
)

type DashboardHandler struct {
	occurrences *services.OccurrenceService
	taskRepo    repository.TaskRepository
}

func NewDashboardHandler(occurrences *services.OccurrenceService, taskRepo repository.TaskRepository) *DashboardHandler {
	return &DashboardHandler{
		occurrences: occurrences,
		taskRepo:    taskRepo,
	}
}

type dashboardResponse struct {
	Counts           map[services.Bucket]int                         `json:"counts"`
	CompletedAllTime int                                             `json:"completed_all_time"`
	Buckets          services.Buckets                                `json:"buckets"`
	Frequencies      map[models.RecurrenceKind][]services.Occurrence `json:"frequencies"`
}

// Summary aggregates the caller's visible occurrences into status buckets
// and recurrence groups for the landing page, plus the caller's lifetime
// completed count beyond the listing window.
func (handler *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	scope := services.ListScope{}
	if user.Role == models.RoleManager {
		scope.ManagerID = &user.ID
	}

	occurrences, err := handler.occurrences.List(ctx, scope, time.Time{}, time.Time{})
	if err != nil {
		slog.Error("loading dashboard occurrences", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load dashboard"})
		return
	}

	completedAllTime, err := handler.taskRepo.CountOccurrencesByStatus(ctx, models.TaskStatusCompleted, user.ID)
	if err != nil {
		slog.Error("counting completed occurrences", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load dashboard"})
		return
	}

	buckets := services.GroupByBucket(occurrences, handler.occurrences.Now(), handler.occurrences.Location())
	writeJSON(w, http.StatusOK, dashboardResponse{
		Counts: map[services.Bucket]int{
			services.BucketOverdue:   len(buckets.Overdue),
			services.BucketDueToday:  len(buckets.DueToday),
			services.BucketUpcoming:  len(buckets.Upcoming),
			services.BucketCompleted: len(buckets.Completed),
		},
		CompletedAllTime: completedAllTime,
		Buckets:          buckets,
		Frequencies:      services.GroupByFrequency(occurrences),
	})
}
