package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"consolidador/internal/domain"
	"consolidador/internal/infra"
	"consolidador/internal/maestra"
	"consolidador/internal/middleware"
	"consolidador/internal/remote"
	"consolidador/internal/storage"
)

// JobService is the backend job manager as seen by the HTTP layer.
type JobService interface {
	Submit(ctx context.Context, params domain.JobParams) (domain.Job, error)
	Status(ctx context.Context, jobID string) (domain.Job, error)
	LogsSince(jobID string, since int) (domain.LogPage, error)
	Cancel(jobID string) error
	History(ctx context.Context) ([]domain.JobSummary, error)
	Artifacts(ctx context.Context, jobID string) ([]domain.Artifact, error)
}

// Pinger reports database reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Jobs           JobService
	Outputs        *storage.FileStore
	Master         *storage.MasterStore
	Catalog        *maestra.Reader
	SFTP           *remote.Browser
	DB             Pinger
	Logger         *infra.Logger
	MaxUploadBytes int64
	Now            func() time.Time
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// error writes {"detail": ...} with the message localized for the request.
func (a *App) error(w http.ResponseWriter, r *http.Request, code int, key string, args ...any) {
	a.json(w, code, map[string]string{"detail": localize(middleware.LocaleFromContext(r.Context()), key, args...)})
}

func (a *App) message(r *http.Request, key string, args ...any) string {
	return localize(middleware.LocaleFromContext(r.Context()), key, args...)
}

// fail maps domain errors onto HTTP answers. Anything unexpected is logged
// and reported as a 500.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, notFoundKey string, args ...any) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, r, http.StatusNotFound, notFoundKey, args...)
	case errors.Is(err, domain.ErrValidation):
		a.error(w, r, http.StatusBadRequest, msgSelectionRequired)
	case errors.Is(err, domain.ErrMasterMissing):
		a.error(w, r, http.StatusBadRequest, msgMasterMissing)
	case errors.Is(err, domain.ErrJobNotActive):
		a.error(w, r, http.StatusConflict, msgJobNotActive)
	case errors.Is(err, domain.ErrInvalidKey):
		a.error(w, r, http.StatusBadRequest, msgInvalidFilename)
	case errors.Is(err, domain.ErrInvalidUpload):
		a.error(w, r, http.StatusBadRequest, msgUnsupportedFormat)
	case errors.Is(err, maestra.ErrUnreadable):
		a.error(w, r, http.StatusUnprocessableEntity, msgMasterUnreadable)
	default:
		a.logger().Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("http: request failed")
		a.error(w, r, http.StatusInternalServerError, msgInternal)
	}
}

func (a *App) logger() *infra.Logger {
	return infra.OrNop(a.Logger)
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
