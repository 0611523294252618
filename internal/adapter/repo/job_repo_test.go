package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"consolidador/internal/domain"
	"consolidador/internal/sqlinline"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	query string
	args  []any
}

type fakeSQL struct {
	execs []execCall
	row   pgx.Row
	rows  pgx.Rows
}

func (f *fakeSQL) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{query: query, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeSQL) QueryRow(context.Context, string, ...any) pgx.Row {
	return f.row
}

func (f *fakeSQL) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	if query != sqlinline.QListRecentJobs {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("unexpected args count: %d", len(args))
	}
	return f.rows, nil
}

type scanRow func(dest ...any) error

func (s scanRow) Scan(dest ...any) error { return s(dest...) }

type testRowsBase struct{}

func (testRowsBase) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (testRowsBase) Conn() *pgx.Conn                              { return nil }
func (testRowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (testRowsBase) Values() ([]any, error)                       { return nil, errors.New("values not supported") }
func (testRowsBase) RawValues() [][]byte                          { return nil }

type summaryRows struct {
	testRowsBase
	rows []domain.JobSummary
	idx  int
}

func (s *summaryRows) Next() bool {
	if s.idx >= len(s.rows) {
		return false
	}
	s.idx++
	return true
}

func (s *summaryRows) Scan(dest ...any) error {
	if len(dest) != 8 {
		return fmt.Errorf("unexpected scan args: %d", len(dest))
	}
	r := s.rows[s.idx-1]
	*dest[0].(*string) = r.ID
	*dest[1].(*string) = r.State.Wire()
	*dest[2].(*string) = string(r.Mode)
	*dest[3].(*string) = r.Year
	*dest[4].(*int) = r.ContractsTotal
	*dest[5].(*time.Time) = r.StartedAt
	*dest[6].(**time.Time) = r.FinishedAt
	*dest[7].(*int) = r.ArtifactCount
	return nil
}

func (s *summaryRows) Err() error { return nil }
func (s *summaryRows) Close()     {}

func TestJobRepositorySave(t *testing.T) {
	sql := &fakeSQL{}
	repo := NewJobRepository(sql)
	started := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	job := &domain.Job{
		ID:        "job-1",
		State:     domain.JobStateCompleted,
		Mode:      domain.JobModeByYear,
		Year:      "2024",
		Progress:  100,
		StartedAt: started,
		Artifacts: []string{"consolidado.xlsx"},
	}

	if err := repo.Save(context.Background(), job); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if len(sql.execs) != 1 || sql.execs[0].query != sqlinline.QUpsertJob {
		t.Fatalf("unexpected exec calls: %#v", sql.execs)
	}
	args := sql.execs[0].args
	if len(args) != 14 {
		t.Fatalf("args count = %d, want 14", len(args))
	}
	if args[1] != "completed" {
		t.Fatalf("state arg = %#v, want completed", args[1])
	}
	if args[11] != `["consolidado.xlsx"]` {
		t.Fatalf("artifacts arg = %#v", args[11])
	}
	if args[12] != `[]` {
		t.Fatalf("errors arg = %#v, want empty list", args[12])
	}
}

func TestJobRepositoryGetByID(t *testing.T) {
	started := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	sql := &fakeSQL{row: scanRow(func(dest ...any) error {
		if len(dest) != 14 {
			return fmt.Errorf("unexpected scan args: %d", len(dest))
		}
		*dest[0].(*string) = "job-9"
		*dest[1].(*string) = "cancelled"
		*dest[2].(*string) = "ESPECIFICO"
		*dest[3].(*string) = "2023"
		*dest[4].(*string) = "572"
		*dest[5].(*float64) = 40
		*dest[6].(*string) = "Cancelado por el usuario"
		*dest[7].(*int) = 1
		*dest[8].(*int) = 0
		*dest[9].(*time.Time) = started
		*dest[11].(*[]byte) = []byte(`[]`)
		*dest[12].(*[]byte) = []byte(`["timeout"]`)
		*dest[13].(*int) = 12
		return nil
	})}

	job, err := NewJobRepository(sql).GetByID(context.Background(), "job-9")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if job.State != domain.JobStateCancelled || job.Mode != domain.JobModeContract {
		t.Fatalf("unexpected job: %#v", job)
	}
	if len(job.Errors) != 1 || job.Errors[0] != "timeout" {
		t.Fatalf("errors = %#v", job.Errors)
	}
	if job.FinishedAt != nil {
		t.Fatalf("expected nil finished_at")
	}
}

func TestJobRepositoryGetByIDNotFound(t *testing.T) {
	sql := &fakeSQL{row: scanRow(func(...any) error { return pgx.ErrNoRows })}

	if _, err := NewJobRepository(sql).GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID error = %v, want ErrNotFound", err)
	}
}

func TestJobRepositoryListRecent(t *testing.T) {
	finished := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	sql := &fakeSQL{rows: &summaryRows{rows: []domain.JobSummary{
		{ID: "b", State: domain.JobStateFailed, Mode: domain.JobModeAll, StartedAt: finished.Add(-time.Minute), FinishedAt: &finished},
		{ID: "a", State: domain.JobStateCompleted, Mode: domain.JobModeByYear, Year: "2024", ArtifactCount: 2},
	}}}

	got, err := NewJobRepository(sql).ListRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRecent returned error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[0].State != domain.JobStateFailed {
		t.Fatalf("unexpected summaries: %#v", got)
	}
	if got[1].ArtifactCount != 2 {
		t.Fatalf("artifact count = %d, want 2", got[1].ArtifactCount)
	}
}
