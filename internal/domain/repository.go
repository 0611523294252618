package domain

import "context"

// JobRepository persists finished runs so history survives restarts.
type JobRepository interface {
	Save(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListRecent(ctx context.Context, limit int) ([]JobSummary, error)
}
