package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"consolidador/internal/domain"
	"consolidador/internal/infra"
	"consolidador/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// EnsureSchema creates the jobs table when missing.
func (r *JobRepositoryPG) EnsureSchema(ctx context.Context) error {
	_, err := r.sql.Exec(ctx, sqlinline.QEnsureJobsTable)
	return err
}

// Save inserts or updates a job record.
func (r *JobRepositoryPG) Save(ctx context.Context, job *domain.Job) error {
	artifacts, err := json.Marshal(nonNil(job.Artifacts))
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}
	errs, err := json.Marshal(nonNil(job.Errors))
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QUpsertJob,
		job.ID,
		string(job.State),
		string(job.Mode),
		job.Year,
		job.ContractNumber,
		job.Progress,
		job.StatusMessage,
		job.ContractsTotal,
		job.ContractsProcessed,
		job.StartedAt,
		job.FinishedAt,
		string(artifacts),
		string(errs),
		job.TotalLogs,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectJob, jobID)
	var (
		job             domain.Job
		state, mode     string
		artifacts, errs []byte
	)
	if err := row.Scan(
		&job.ID,
		&state,
		&mode,
		&job.Year,
		&job.ContractNumber,
		&job.Progress,
		&job.StatusMessage,
		&job.ContractsTotal,
		&job.ContractsProcessed,
		&job.StartedAt,
		&job.FinishedAt,
		&artifacts,
		&errs,
		&job.TotalLogs,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	parsed, err := domain.ParseJobState(state)
	if err != nil {
		return nil, err
	}
	job.State = parsed
	job.Mode = domain.JobMode(mode)
	if err := decodeList(artifacts, &job.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	if err := decodeList(errs, &job.Errors); err != nil {
		return nil, fmt.Errorf("decode errors: %w", err)
	}
	return &job, nil
}

// ListRecent returns the newest runs first.
func (r *JobRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.JobSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListRecentJobs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.JobSummary
	for rows.Next() {
		var (
			s           domain.JobSummary
			state, mode string
		)
		if err := rows.Scan(&s.ID, &state, &mode, &s.Year, &s.ContractsTotal, &s.StartedAt, &s.FinishedAt, &s.ArtifactCount); err != nil {
			return nil, err
		}
		if s.State, err = domain.ParseJobState(state); err != nil {
			return nil, err
		}
		s.Mode = domain.JobMode(mode)
		out = append(out, s)
	}
	return out, rows.Err()
}

func decodeList(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
