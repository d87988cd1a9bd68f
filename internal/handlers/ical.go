package handlers

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/Krestall88/cleaning-control-sub003/internal/services"
)

// FeedHandler serves a read-only iCal feed of upcoming and recent
// occurrences so cleaners can subscribe from their phone calendar.
// Access is gated by a shared token instead of a session cookie
// because calendar apps cannot complete an OIDC login.
type FeedHandler struct {
	occurrences *services.OccurrenceService
	token       string
	now         func() time.Time
}

func NewFeedHandler(occurrences *services.OccurrenceService, token string) *FeedHandler {
	return &FeedHandler{
		occurrences: occurrences,
		token:       token,
		now:         time.Now,
	}
}

func (handler *FeedHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if handler.token == "" {
		http.Error(w, "feed disabled", http.StatusNotFound)
		return
	}
	provided := r.URL.Query().Get("token")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(handler.token)) != 1 {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	occurrences, err := handler.occurrences.List(r.Context(), services.ListScope{}, time.Time{}, time.Time{})
	if err != nil {
		slog.Error("building ical feed", "error", err)
		http.Error(w, "failed to build feed", http.StatusInternalServerError)
		return
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//cleaning-control//tasks//RU")

	now := handler.now()
	for _, occurrence := range occurrences {
		if occurrence.Source == services.SourceTemplate {
			continue
		}
		event := cal.AddEvent(occurrence.Key.TaskID + "-" + occurrence.Key.Date)
		event.SetDtStampTime(now)
		event.SetAllDayStartAt(occurrence.ScheduledDate)
		event.SetAllDayEndAt(occurrence.ScheduledDate.AddDate(0, 0, 1))
		event.SetSummary(occurrence.Task.Title)
		if occurrence.Task.Description != "" {
			event.SetDescription(occurrence.Task.Description)
		}
		event.SetStatus(eventStatus(occurrence))
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="tasks.ics"`)
	fmt.Fprint(w, cal.Serialize())
}

func eventStatus(occurrence services.Occurrence) ical.ObjectStatus {
	if occurrence.Bucket == services.BucketCompleted {
		return ical.ObjectStatusConfirmed
	}
	return ical.ObjectStatusTentative
}
