package server

import (
	"context"
	"io"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/sokinpui/sitepatch/model"
)

// Project is the part of the application the HTTP API drives.
type Project interface {
	Files() []model.File
	File(path string) (model.File, bool)
	RunTurn(ctx context.Context, r io.Reader) (model.Summary, error)
	Undo() (model.Summary, error)
	Redo() (model.Summary, error)
}

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(project Project, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	h := &handler{project: project, logger: logger}

	r.Get("/health", h.Health)

	r.Route("/files", func(r chi.Router) {
		r.Get("/", h.ListFiles)
		r.Get("/*", h.GetFile)
	})

	r.Post("/turns", h.RunTurn)
	r.Post("/undo", h.Undo)
	r.Post("/redo", h.Redo)

	return r
}
