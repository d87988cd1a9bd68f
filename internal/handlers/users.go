package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Krestall88/cleaning-control-sub003/internal/models"
	"github.com/Krestall88/cleaning-control-sub003/internal/repository"
	"github.com/go-chi/chi/v5"
)

type UsersHandler struct {
	userRepo repository.UserRepository
}

func NewUsersHandler(userRepo repository.UserRepository) *UsersHandler {
	return &UsersHandler{userRepo: userRepo}
}

func (handler *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := handler.userRepo.FindAll(r.Context())
	if err != nil {
		slog.Error("listing users", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load users"})
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type updateRoleRequest struct {
	Role models.Role `json:"role"`
}

func (handler *UsersHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var request updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	switch request.Role {
	case models.RoleAdmin, models.RoleDeputy, models.RoleManager:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown role"})
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := handler.userRepo.FindByID(r.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	if err := handler.userRepo.UpdateRole(r.Context(), id, request.Role); err != nil {
		slog.Error("updating user role", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update role"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
