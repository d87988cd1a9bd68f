package server

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/Krestall88/cleaning-control-sub003/internal/config"
	"github.com/Krestall88/cleaning-control-sub003/internal/handlers"
	"github.com/Krestall88/cleaning-control-sub003/internal/middleware"
	"github.com/Krestall88/cleaning-control-sub003/internal/repository"
	"github.com/Krestall88/cleaning-control-sub003/internal/services"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	router *chi.Mux
	config config.Config
}

func New(database *sql.DB, cfg config.Config, authService *services.AuthService, occurrenceService *services.OccurrenceService) *Server {
	userRepo := repository.NewUserRepository(database)
	objectRepo := repository.NewObjectRepository(database)
	taskRepo := repository.NewTaskRepository(database)

	authHandler := handlers.NewAuthHandler(authService)
	tasksHandler := handlers.NewTasksHandler(taskRepo, objectRepo, occurrenceService)
	objectsHandler := handlers.NewObjectsHandler(objectRepo, userRepo)
	usersHandler := handlers.NewUsersHandler(userRepo)
	dashboardHandler := handlers.NewDashboardHandler(occurrenceService, taskRepo)
	feedHandler := handlers.NewFeedHandler(occurrenceService, cfg.FeedToken)

	router := chi.NewRouter()

	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Compress(5))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Get("/auth/login", authHandler.Login)
	router.Get("/auth/callback", authHandler.Callback)
	router.Get("/auth/logout", authHandler.Logout)

	router.Get("/ical", feedHandler.Feed)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(authService))

		r.Get("/auth/me", authHandler.Me)

		r.Get("/api/dashboard", dashboardHandler.Summary)

		r.Get("/api/tasks/calendar", tasksHandler.Calendar)
		r.Get("/api/tasks/{id}", tasksHandler.Get)
		r.Post("/api/tasks/{id}/complete", tasksHandler.CompleteTask)
		r.Post("/api/tasks/{id}/occurrences/{date}/complete", tasksHandler.CompleteOccurrence)
		r.Post("/api/tasks/{id}/occurrences/{date}/skip", tasksHandler.SkipOccurrence)

		r.Get("/api/objects", objectsHandler.List)
		r.Get("/api/objects/{id}", objectsHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Post("/api/tasks", tasksHandler.Create)
			r.Post("/api/tasks/{id}/stop", tasksHandler.Stop)
			r.Post("/api/tasks/{id}/resume", tasksHandler.Resume)
			r.Delete("/api/tasks/{id}", tasksHandler.Delete)

			r.Post("/api/objects", objectsHandler.Create)
			r.Put("/api/objects/{id}", objectsHandler.Update)
			r.Delete("/api/objects/{id}", objectsHandler.Delete)

			r.Get("/api/users", usersHandler.List)
			r.Post("/api/users/{id}/role", usersHandler.UpdateRole)
		})
	})

	return &Server{
		router: router,
		config: cfg,
	}
}

func (server *Server) Start() error {
	address := ":" + server.config.Port
	slog.Info("starting server", "address", address)
	return http.ListenAndServe(address, server.router)
}
