// Package monitor drives one consolidation job from submission to a terminal
// state by polling the backend's cursor-based log endpoint.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"consolidador/internal/domain"
	"consolidador/internal/infra"
)

const (
	DefaultInterval        = 500 * time.Millisecond
	DefaultMaxPollFailures = 10

	abandonTimeout = 5 * time.Second
)

var (
	ErrConnectionLost = errors.New("monitor: connection to backend lost")
	ErrClosed         = errors.New("monitor: closed")
	ErrNoActiveJob    = errors.New("monitor: no active job")
	ErrSuperseded     = errors.New("monitor: start superseded by another call")
)

// Backend is the subset of the API the monitor needs.
type Backend interface {
	SubmitJob(ctx context.Context, params domain.JobParams) (domain.SubmitResult, error)
	JobLogs(ctx context.Context, jobID string, since int) (domain.LogPage, error)
	CancelJob(ctx context.Context, jobID string) error
}

// Options configures a Monitor.
type Options struct {
	Backend         Backend
	Interval        time.Duration
	MaxPollFailures int
	// RequestTimeout bounds each poll request. Zero means no extra bound.
	RequestTimeout time.Duration
	Logger         *infra.Logger
	// OnUpdate is called after every state change, outside the monitor lock
	// and from the goroutine that caused the change. It must not call Start
	// or Close.
	OnUpdate func(Update)
}

// Snapshot is a copy of the monitor's view of the current job.
type Snapshot struct {
	JobID           string
	State           domain.JobState
	Progress        float64
	StatusMessage   string
	CurrentContract string
	Cursor          int
	Artifacts       []string
	Stats           Stats
	PollFailures    int
	Lost            bool
}

// Update carries a snapshot and the entries appended by the change, if any.
type Update struct {
	Snapshot Snapshot
	Entries  []domain.LogEntry
}

// Monitor tracks at most one job at a time. It is safe for concurrent use.
type Monitor struct {
	backend     Backend
	interval    time.Duration
	maxFailures int
	timeout     time.Duration
	logger      *infra.Logger
	onUpdate    func(Update)

	mu sync.Mutex
	// gen invalidates responses issued before the last start, cancel,
	// terminal state or close.
	gen       uint64
	closed    bool
	stop      context.CancelFunc
	done      chan struct{}
	jobID     string
	state     domain.JobState
	progress  float64
	message   string
	contract  string
	cursor    int
	logs      []domain.LogEntry
	artifacts []string
	stats     Stats
	processed int
	total     int
	failures  int
	lost      bool
	err       error
}

// New constructs a Monitor.
func New(opts Options) (*Monitor, error) {
	if opts.Backend == nil {
		return nil, errors.New("monitor: backend is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxFailures := opts.MaxPollFailures
	if maxFailures <= 0 {
		maxFailures = DefaultMaxPollFailures
	}
	return &Monitor{
		backend:     opts.Backend,
		interval:    interval,
		maxFailures: maxFailures,
		timeout:     opts.RequestTimeout,
		logger:      infra.OrNop(opts.Logger),
		onUpdate:    opts.OnUpdate,
		state:       domain.JobStatePending,
	}, nil
}

// Start submits a new job and begins polling it. Any job already tracked is
// abandoned first: its poller is stopped and its log, cursor and artifacts
// are discarded. Validation failures never reach the backend. When Start is
// superseded or the monitor closes while the submission is in flight, the
// job the backend accepted is cancelled on a best-effort basis.
func (m *Monitor) Start(ctx context.Context, params domain.JobParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	done := m.haltLocked()
	m.resetLocked()
	gen := m.gen
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if done != nil {
		<-done
	}
	m.emit(Update{Snapshot: snap})

	res, err := m.backend.SubmitJob(ctx, params.Normalized())
	if err == nil && (!res.Success || res.JobID == "") {
		detail := res.Detail
		if detail == "" {
			detail = res.Message
		}
		if detail == "" {
			detail = "backend rejected the job"
		}
		err = errors.New(detail)
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrSubmission, err)
		m.mu.Lock()
		if m.gen == gen {
			m.err = err
		}
		m.mu.Unlock()
		m.logger.Warn().Err(err).Msg("monitor: submit failed")
		return "", err
	}

	m.mu.Lock()
	if m.gen != gen {
		closed := m.closed
		m.mu.Unlock()
		m.abandon(ctx, res.JobID)
		if closed {
			return "", ErrClosed
		}
		return "", ErrSuperseded
	}
	m.jobID = res.JobID
	m.state = domain.JobStateRunning
	m.startPollerLocked()
	snap = m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info().Str("job_id", res.JobID).Str("mode", string(params.Mode())).Msg("monitor: job started")
	m.emit(Update{Snapshot: snap})
	return res.JobID, nil
}

// Cancel marks the active job cancelled and stops polling at once, then asks
// the backend to cancel. The backend's answer never changes local state; its
// error is returned for reporting only.
func (m *Monitor) Cancel(ctx context.Context) error {
	m.mu.Lock()
	if m.jobID == "" || m.state.Terminal() {
		m.mu.Unlock()
		return ErrNoActiveJob
	}
	m.haltLocked()
	m.state = domain.JobStateCancelled
	m.lost = false
	jobID := m.jobID
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(Update{Snapshot: snap})

	if err := m.backend.CancelJob(ctx, jobID); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("monitor: cancel request failed")
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	m.logger.Info().Str("job_id", jobID).Msg("monitor: job cancelled")
	return nil
}

// abandon asks the backend to cancel a job it accepted after this monitor
// moved on. Failures are only logged.
func (m *Monitor) abandon(ctx context.Context, jobID string) {
	m.logger.Warn().Str("job_id", jobID).Msg("monitor: start superseded, cancelling accepted job")
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonTimeout)
	defer cancel()
	if err := m.backend.CancelJob(cctx, jobID); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("monitor: cancel of superseded job failed")
	}
}

// Resume restarts polling from the current cursor after the connection was
// declared lost.
func (m *Monitor) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.jobID == "" || m.state.Terminal() || !m.lost {
		m.mu.Unlock()
		return ErrNoActiveJob
	}
	m.failures = 0
	m.lost = false
	m.err = nil
	m.startPollerLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(Update{Snapshot: snap})
	return nil
}

// Close stops polling and waits for the poller to exit. Responses that
// arrive afterwards are ignored. Close is idempotent.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	done := m.haltLocked()
	m.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Logs returns a copy of every entry received for the current job.
func (m *Monitor) Logs() []domain.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LogEntry(nil), m.logs...)
}

// Err returns the last submission or connection error of the current job.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Monitor) poll(ctx context.Context, gen uint64, jobID string, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.tick(ctx, gen, jobID) {
				return
			}
		}
	}
}

// tick performs one poll and reports whether polling should continue.
func (m *Monitor) tick(ctx context.Context, gen uint64, jobID string) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	since := m.cursor
	m.mu.Unlock()

	reqCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	page, err := m.backend.JobLogs(reqCtx, jobID, since)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	if err != nil {
		m.failures++
		failures := m.failures
		if failures < m.maxFailures {
			m.mu.Unlock()
			m.logger.Debug().Err(err).Str("job_id", jobID).Int("failures", failures).Msg("monitor: poll failed")
			return true
		}
		m.haltLocked()
		m.lost = true
		m.err = fmt.Errorf("%w after %d attempts: %v", ErrConnectionLost, failures, err)
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.logger.Error().Err(err).Str("job_id", jobID).Int("failures", failures).Msg("monitor: connection lost")
		m.emit(Update{Snapshot: snap})
		return false
	}

	m.failures = 0
	entries := append([]domain.LogEntry(nil), page.Logs...)
	m.logs = append(m.logs, entries...)
	m.cursor += len(entries)
	for _, e := range entries {
		m.stats.Observe(e.Text)
	}
	if page.Progress > m.progress {
		m.progress = page.Progress
	}
	if page.StatusMessage != "" {
		m.message = page.StatusMessage
	}
	if page.CurrentContract != "" {
		m.contract = page.CurrentContract
	}
	if page.ContractsTotal > 0 {
		m.processed = page.ContractsProcessed
		m.total = page.ContractsTotal
	}

	terminal := page.State.Terminal()
	if terminal {
		m.state = page.State
		m.artifacts = append([]string{}, page.Artifacts...)
		m.haltLocked()
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if terminal {
		m.logger.Info().
			Str("job_id", jobID).
			Str("state", string(page.State)).
			Int("artifacts", len(page.Artifacts)).
			Msg("monitor: job finished")
	}
	m.emit(Update{Snapshot: snap, Entries: entries})
	return !terminal
}

// haltLocked invalidates outstanding responses and stops the poller. It
// returns the poller's done channel, if one was running.
func (m *Monitor) haltLocked() chan struct{} {
	m.gen++
	if m.stop != nil {
		m.stop()
		m.stop = nil
	}
	done := m.done
	m.done = nil
	return done
}

func (m *Monitor) startPollerLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.stop = cancel
	m.done = done
	go m.poll(ctx, m.gen, m.jobID, done)
}

func (m *Monitor) resetLocked() {
	m.jobID = ""
	m.state = domain.JobStatePending
	m.progress = 0
	m.message = ""
	m.contract = ""
	m.cursor = 0
	m.logs = nil
	m.artifacts = nil
	m.stats = Stats{}
	m.processed = 0
	m.total = 0
	m.failures = 0
	m.lost = false
	m.err = nil
}

func (m *Monitor) snapshotLocked() Snapshot {
	return Snapshot{
		JobID:           m.jobID,
		State:           m.state,
		Progress:        m.progress,
		StatusMessage:   m.message,
		CurrentContract: m.contract,
		Cursor:          m.cursor,
		Artifacts:       append([]string(nil), m.artifacts...),
		Stats:           m.stats.withCounters(m.processed, m.total),
		PollFailures:    m.failures,
		Lost:            m.lost,
	}
}

func (m *Monitor) emit(u Update) {
	if m.onUpdate != nil {
		m.onUpdate(u)
	}
}
