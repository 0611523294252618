package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"consolidador/internal/domain"
)

type submitRequest struct {
	All            bool   `json:"procesar_todo"`
	Year           *int   `json:"año"`
	ContractNumber string `json:"numero_contrato"`
}

// ProcessSubmit starts a consolidation job.
func (a *App) ProcessSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, r, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	params := domain.JobParams{All: req.All, ContractNumber: req.ContractNumber}
	if req.Year != nil {
		params.Year = *req.Year
	}
	job, err := a.Jobs.Submit(r.Context(), params)
	if err != nil {
		a.fail(w, r, err, msgJobNotFound)
		return
	}
	res := domain.SubmitResult{
		Success:            true,
		JobID:              job.ID,
		Mode:               job.Mode,
		Message:            a.message(r, msgJobStarted, job.Mode),
		EstimatedContracts: job.ContractsTotal,
	}
	if job.ContractsTotal > 0 {
		res.Message = a.message(r, msgJobStartedCount, job.ContractsTotal)
	}
	a.json(w, http.StatusOK, res)
}

// ProcessStatus returns the job record without its log.
func (a *App) ProcessStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Status(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err, msgJobNotFound)
		return
	}
	a.json(w, http.StatusOK, job)
}

// ProcessLogs returns log entries after ?desde=N with the current status.
func (a *App) ProcessLogs(w http.ResponseWriter, r *http.Request) {
	since := 0
	if raw := r.URL.Query().Get("desde"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			a.error(w, r, http.StatusBadRequest, msgInvalidPayload)
			return
		}
		since = n
	}
	page, err := a.Jobs.LogsSince(chi.URLParam(r, "job_id"), since)
	if err != nil {
		a.fail(w, r, err, msgJobNotFound)
		return
	}
	if page.Logs == nil {
		page.Logs = []domain.LogEntry{}
	}
	if page.Artifacts == nil {
		page.Artifacts = []string{}
	}
	a.json(w, http.StatusOK, page)
}

// ProcessCancel stops a running job.
func (a *App) ProcessCancel(w http.ResponseWriter, r *http.Request) {
	if err := a.Jobs.Cancel(chi.URLParam(r, "job_id")); err != nil {
		a.fail(w, r, err, msgJobNotFound)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "mensaje": a.message(r, msgJobCancelled)})
}

// ProcessHistory lists jobs newest first.
func (a *App) ProcessHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.Jobs.History(r.Context())
	if err != nil {
		a.fail(w, r, err, msgJobNotFound)
		return
	}
	if history == nil {
		history = []domain.JobSummary{}
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "historial": history})
}

// ProcessArtifacts lists the files a job generated that still exist.
func (a *App) ProcessArtifacts(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	files, err := a.Jobs.Artifacts(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err, msgJobNotFound)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "job_id": jobID, "archivos": files})
}
