package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Krestall88/cleaning-control-sub003/internal/middleware"
	"github.com/Krestall88/cleaning-control-sub003/internal/models"
	"github.com/Krestall88/cleaning-control-sub003/internal/repository"
	"github.com/go-chi/chi/v5"
)

type ObjectsHandler struct {
	objectRepo repository.ObjectRepository
	userRepo   repository.UserRepository
}

func NewObjectsHandler(objectRepo repository.ObjectRepository, userRepo repository.UserRepository) *ObjectsHandler {
	return &ObjectsHandler{objectRepo: objectRepo, userRepo: userRepo}
}

func (handler *ObjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	filter := repository.ObjectFilter{}
	if user.Role == models.RoleManager {
		filter.ManagerID = &user.ID
	}

	objects, err := handler.objectRepo.FindAll(ctx, filter)
	if err != nil {
		slog.Error("listing objects", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load objects"})
		return
	}
	writeJSON(w, http.StatusOK, objects)
}

func (handler *ObjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	object, err := handler.objectRepo.FindByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "object not found"})
		return
	}
	if user.Role == models.RoleManager && (object.ManagerID == nil || *object.ManagerID != user.ID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "object belongs to another manager"})
		return
	}
	writeJSON(w, http.StatusOK, object)
}

type objectRequest struct {
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	ManagerID      *string `json:"manager_id"`
	Timezone       string  `json:"timezone"`
	RequirePhoto   bool    `json:"require_photo"`
	RequireComment bool    `json:"require_comment"`
}

func (handler *ObjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	request, ok := handler.decodeObject(w, r)
	if !ok {
		return
	}

	object, err := handler.objectRepo.Create(ctx, models.Object{
		Name:           strings.TrimSpace(request.Name),
		Address:        request.Address,
		ManagerID:      request.ManagerID,
		Timezone:       request.Timezone,
		RequirePhoto:   request.RequirePhoto,
		RequireComment: request.RequireComment,
	})
	if err != nil {
		slog.Error("creating object", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create object"})
		return
	}
	writeJSON(w, http.StatusCreated, object)
}

func (handler *ObjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	object, err := handler.objectRepo.FindByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "object not found"})
		return
	}

	request, ok := handler.decodeObject(w, r)
	if !ok {
		return
	}

	object.Name = strings.TrimSpace(request.Name)
	object.Address = request.Address
	object.ManagerID = request.ManagerID
	object.Timezone = request.Timezone
	object.RequirePhoto = request.RequirePhoto
	object.RequireComment = request.RequireComment

	if err := handler.objectRepo.Update(ctx, object); err != nil {
		slog.Error("updating object", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update object"})
		return
	}
	writeJSON(w, http.StatusOK, object)
}

func (handler *ObjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := handler.objectRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		slog.Error("deleting object", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete object"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (handler *ObjectsHandler) decodeObject(w http.ResponseWriter, r *http.Request) (objectRequest, bool) {
	var request objectRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return request, false
	}
	if strings.TrimSpace(request.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return request, false
	}
	if request.Timezone != "" {
		if _, err := time.LoadLocation(request.Timezone); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown timezone"})
			return request, false
		}
	}
	if request.ManagerID != nil {
		if _, err := handler.userRepo.FindByID(r.Context(), *request.ManagerID); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown manager"})
			return request, false
		}
	}
	return request, true
}
