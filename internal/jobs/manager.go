// Package jobs runs consolidation jobs in-process and keeps their append-only
// logs so clients can poll them by offset.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"consolidador/internal/domain"
	"consolidador/internal/infra"
	"consolidador/internal/logline"
	"consolidador/internal/storage"
)

const messageLimit = 100

// MasterSource reports the absolute path of the loaded master file.
type MasterSource interface {
	MasterPath() (string, error)
}

// ContractCatalog counts the master contracts a selection covers.
type ContractCatalog interface {
	CountContracts(params domain.JobParams) (int, error)
}

// Options configures a Manager.
type Options struct {
	Runner         Runner
	Command        []string
	WorkDir        string
	Outputs        *storage.FileStore
	Master         MasterSource
	Catalog        ContractCatalog
	Repository     domain.JobRepository
	SFTP           infra.SFTPConfig
	ArtifactWindow time.Duration
	Logger         *infra.Logger
	Now            func() time.Time
}

// Manager owns every job of this process.
type Manager struct {
	runner         Runner
	command        []string
	workDir        string
	outputs        *storage.FileStore
	master         MasterSource
	catalog        ContractCatalog
	repo           domain.JobRepository
	sftp           infra.SFTPConfig
	artifactWindow time.Duration
	logger         *infra.Logger
	now            func() time.Time

	mu   sync.RWMutex
	jobs map[string]*record
	wg   sync.WaitGroup
}

type record struct {
	job    domain.Job
	logs   []domain.LogEntry
	cancel context.CancelFunc
}

// NewManager constructs a Manager. Runner defaults to ExecRunner.
func NewManager(opts Options) (*Manager, error) {
	if opts.Outputs == nil {
		return nil, errors.New("jobs: outputs store is required")
	}
	if opts.Master == nil {
		return nil, errors.New("jobs: master source is required")
	}
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	window := opts.ArtifactWindow
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Manager{
		runner:         runner,
		command:        append([]string(nil), opts.Command...),
		workDir:        opts.WorkDir,
		outputs:        opts.Outputs,
		master:         opts.Master,
		catalog:        opts.Catalog,
		repo:           opts.Repository,
		sftp:           opts.SFTP,
		artifactWindow: window,
		logger:         infra.OrNop(opts.Logger),
		now:            now,
		jobs:           make(map[string]*record),
	}, nil
}

// Submit validates params, registers a pending job and starts it.
func (m *Manager) Submit(ctx context.Context, params domain.JobParams) (domain.Job, error) {
	if err := params.Validate(); err != nil {
		return domain.Job{}, err
	}
	masterPath, err := m.master.MasterPath()
	if err != nil {
		return domain.Job{}, err
	}
	params = params.Normalized()

	job := domain.Job{
		ID:             uuid.NewString(),
		State:          domain.JobStatePending,
		StatusMessage:  "Iniciando...",
		Mode:           params.Mode(),
		ContractNumber: params.ContractNumber,
		StartedAt:      m.now(),
	}
	if params.Year > 0 {
		job.Year = strconv.Itoa(params.Year)
	}
	if m.catalog != nil {
		if n, err := m.catalog.CountContracts(params); err != nil {
			m.logger.Debug().Err(err).Msg("jobs: contract count unavailable")
		} else {
			job.ContractsTotal = n
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rec := &record{job: job, cancel: cancel}

	m.mu.Lock()
	m.jobs[job.ID] = rec
	m.mu.Unlock()

	m.logger.Info().
		Str("job_id", job.ID).
		Str("mode", string(job.Mode)).
		Int("contracts", job.ContractsTotal).
		Msg("jobs: submitted")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(runCtx, job.ID, masterPath, params)
	}()
	return job, nil
}

func (m *Manager) run(ctx context.Context, jobID, masterPath string, params domain.JobParams) {
	spec := RunSpec{
		Command: m.command,
		Dir:     m.workDir,
		Env:     m.runEnv(masterPath, params),
	}

	m.update(jobID, func(r *record) {
		r.job.State = domain.JobStateRunning
		r.job.StatusMessage = "Iniciando consolidador..."
	})

	var filter logline.Filter
	err := m.runner.Run(ctx, spec, func(line string) {
		m.consume(jobID, &filter, line)
	})

	artifacts, listErr := m.collectArtifacts(jobID)
	if listErr != nil {
		m.logger.Warn().Err(listErr).Str("job_id", jobID).Msg("jobs: list artifacts failed")
	}

	finished := m.now()
	var final domain.Job
	m.update(jobID, func(r *record) {
		if r.job.State == domain.JobStateCancelled {
			final = r.job
			return
		}
		switch {
		case err == nil:
			r.job.State = domain.JobStateCompleted
			r.job.Progress = 100
			r.job.StatusMessage = "Procesamiento completado exitosamente"
		default:
			var exitErr *ExitError
			msg := err.Error()
			if !errors.As(err, &exitErr) {
				r.logs = append(r.logs, domain.LogEntry{
					Timestamp: finished.Format(domain.LogTimestampLayout),
					Category:  domain.LogError,
					Text:      "Error: " + msg,
				})
			}
			r.job.State = domain.JobStateFailed
			r.job.StatusMessage = msg
			r.job.Errors = append(r.job.Errors, msg)
		}
		r.job.FinishedAt = &finished
		r.job.Artifacts = artifacts
		r.job.SettleContracts()
		final = r.job
	})

	m.logger.Info().
		Str("job_id", jobID).
		Str("state", string(final.State)).
		Int("artifacts", len(final.Artifacts)).
		Msg("jobs: finished")
	m.persist(final)
}

func (m *Manager) runEnv(masterPath string, params domain.JobParams) map[string]string {
	env := map[string]string{
		"CONSOLIDADOR_MAESTRA":   masterPath,
		"CONSOLIDADOR_MODO":      string(params.Mode()),
		"CONSOLIDADOR_OUTPUT":    m.outputs.BasePath(),
		"SFTP_HOST":              m.sftp.Host,
		"SFTP_PORT":              strconv.Itoa(m.sftp.Port),
		"SFTP_USERNAME":          m.sftp.Username,
		"SFTP_PASSWORD":          m.sftp.Password,
		"SFTP_CARPETA_PRINCIPAL": m.sftp.RemoteFolder,
	}
	if params.Year > 0 {
		env["CONSOLIDADOR_ANO"] = strconv.Itoa(params.Year)
	}
	if params.ContractNumber != "" {
		env["CONSOLIDADOR_NUMERO"] = params.ContractNumber
	}
	return env
}

// consume filters, cleans and classifies one output line and appends it.
func (m *Manager) consume(jobID string, filter *logline.Filter, raw string) {
	line := strings.TrimSpace(raw)
	if line == "" || !filter.Visible(line) {
		return
	}
	line = logline.Clean(line)
	entry := domain.LogEntry{
		Timestamp: m.now().Format(domain.LogTimestampLayout),
		Category:  logline.Classify(line),
		Text:      line,
	}
	m.update(jobID, func(r *record) {
		if r.job.State.Terminal() {
			return
		}
		r.logs = append(r.logs, entry)
		if pct, ok := logline.Progress(line); ok {
			r.job.Progress = pct
		}
		if current, total, ok := logline.ContractCounter(line); ok {
			r.job.ContractsProcessed = current
			r.job.ContractsTotal = total
		}
		r.job.StatusMessage = logline.Truncate(line, messageLimit)
		if logline.IsContractLine(line) {
			r.job.CurrentContract = line
		}
	})
}

func (m *Manager) collectArtifacts(jobID string) ([]string, error) {
	m.mu.RLock()
	rec, ok := m.jobs[jobID]
	var started time.Time
	if ok {
		started = rec.job.StartedAt
	}
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	cutoff := started
	if floor := m.now().Add(-m.artifactWindow); floor.After(cutoff) {
		cutoff = floor
	}
	// Filesystems with coarse mtimes can stamp a fresh file slightly earlier.
	return m.outputs.ModifiedSince(cutoff.Add(-2 * time.Second))
}

func (m *Manager) persist(job domain.Job) {
	if m.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.repo.Save(ctx, &job); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: persist failed")
	}
}

func (m *Manager) update(jobID string, fn func(r *record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.jobs[jobID]; ok {
		fn(rec)
		rec.job.TotalLogs = len(rec.logs)
	}
}

// Status returns a copy of the job.
func (m *Manager) Status(ctx context.Context, jobID string) (domain.Job, error) {
	m.mu.RLock()
	rec, ok := m.jobs[jobID]
	if ok {
		job := copyJob(rec.job)
		m.mu.RUnlock()
		return job, nil
	}
	m.mu.RUnlock()
	if m.repo != nil {
		job, err := m.repo.GetByID(ctx, jobID)
		if err != nil {
			return domain.Job{}, err
		}
		return *job, nil
	}
	return domain.Job{}, domain.ErrNotFound
}

// LogsSince returns the entries after offset since together with the status.
func (m *Manager) LogsSince(jobID string, since int) (domain.LogPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.jobs[jobID]
	if !ok {
		return domain.LogPage{}, domain.ErrNotFound
	}
	if since < 0 {
		since = 0
	}
	if since > len(rec.logs) {
		since = len(rec.logs)
	}
	logs := make([]domain.LogEntry, len(rec.logs)-since)
	copy(logs, rec.logs[since:])
	return domain.LogPage{
		Success:            true,
		JobID:              rec.job.ID,
		State:              rec.job.State,
		Progress:           rec.job.Progress,
		StatusMessage:      rec.job.StatusMessage,
		CurrentContract:    rec.job.CurrentContract,
		TotalLogs:          len(rec.logs),
		Logs:               logs,
		Artifacts:          append([]string{}, rec.job.Artifacts...),
		ContractsProcessed: rec.job.ContractsProcessed,
		ContractsTotal:     rec.job.ContractsTotal,
	}, nil
}

// Cancel marks the job cancelled and stops its process. Terminal jobs are
// left untouched and reported with domain.ErrJobNotActive.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	rec, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	if rec.job.State.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: job is %s", domain.ErrJobNotActive, rec.job.State)
	}
	finished := m.now()
	rec.job.State = domain.JobStateCancelled
	rec.job.StatusMessage = "Cancelado por el usuario"
	rec.job.FinishedAt = &finished
	rec.job.SettleContracts()
	cancel := rec.cancel
	m.mu.Unlock()

	cancel()
	m.logger.Info().Str("job_id", jobID).Msg("jobs: cancelled")
	return nil
}

// History lists runs newest first; persisted runs are merged when a
// repository is configured and live jobs take precedence.
func (m *Manager) History(ctx context.Context) ([]domain.JobSummary, error) {
	m.mu.RLock()
	byID := make(map[string]domain.JobSummary, len(m.jobs))
	for id, rec := range m.jobs {
		byID[id] = rec.job.Summary()
	}
	m.mu.RUnlock()

	if m.repo != nil {
		persisted, err := m.repo.ListRecent(ctx, 100)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		for _, s := range persisted {
			if _, live := byID[s.ID]; !live {
				byID[s.ID] = s
			}
		}
	}

	out := make([]domain.JobSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// Artifacts lists the job's generated files that still exist.
func (m *Manager) Artifacts(ctx context.Context, jobID string) ([]domain.Artifact, error) {
	job, err := m.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Artifact, 0, len(job.Artifacts))
	for _, name := range job.Artifacts {
		info, err := m.outputs.Stat(name)
		if err != nil {
			continue
		}
		out = append(out, domain.Artifact{
			Name:        info.Name,
			Size:        info.Size,
			DownloadURL: "/api/descargas/archivo/" + filepath.Base(info.Name),
		})
	}
	return out, nil
}

// Shutdown cancels every running job and waits for them to settle.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, rec := range m.jobs {
		if !rec.job.State.Terminal() {
			rec.cancel()
		}
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func copyJob(j domain.Job) domain.Job {
	j.Artifacts = append([]string(nil), j.Artifacts...)
	j.Errors = append([]string(nil), j.Errors...)
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		j.FinishedAt = &t
	}
	return j
}
