package services

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/pkg/logger"
)

// SchedulerJob represents one scheduled refresh run
type SchedulerJob struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	Reason      string     `json:"reason,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
}

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped"
)

// JobResult holds the result of a job execution
type JobResult struct {
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	Threats     int           `json:"threats"`
	Score       int           `json:"score"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Refresher is the work the scheduler drives
type Refresher interface {
	Refresh(ctx context.Context) (*models.ScanReport, error)
}

// ConnectivityChecker is the run precondition
type ConnectivityChecker interface {
	Online(ctx context.Context) bool
}

// TCPConnectivityChecker reports online when a TCP dial to Address succeeds
type TCPConnectivityChecker struct {
	Address string
	Timeout time.Duration
}

// Online dials Address once
func (c TCPConnectivityChecker) Online(ctx context.Context) bool {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// SchedulerConfig tunes periodic refreshes
type SchedulerConfig struct {
	Interval       time.Duration
	RunOnStart     bool
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	HistorySize    int
}

// Scheduler runs the refresh cycle periodically
type Scheduler struct {
	refresher    Refresher
	connectivity ConnectivityChecker
	config       SchedulerConfig
	logger       *logger.Logger

	mu      sync.RWMutex
	jobs    []*SchedulerJob
	running bool
	stopCh  chan struct{}
}

// NewScheduler creates a new Scheduler. A nil connectivity checker means
// the device is always considered online.
func NewScheduler(cfg SchedulerConfig, refresher Refresher, connectivity ConnectivityChecker, log *logger.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = 30 * time.Second
	}
	if cfg.MaxRetryDelay < cfg.BaseRetryDelay {
		cfg.MaxRetryDelay = cfg.BaseRetryDelay
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	return &Scheduler{
		refresher:    refresher,
		connectivity: connectivity,
		config:       cfg,
		logger:       log.WithComponent("scheduler"),
		stopCh:       make(chan struct{}),
	}
}

// Start runs the scheduler loop until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.config.Interval).Msg("scheduler started")

	if s.config.RunOnStart {
		s.RunNow(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.RunNow(ctx)
		}
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	close(s.stopCh)
	s.logger.Info().Msg("scheduler stopped")
}

// RunNow executes one scheduled job synchronously and returns it
func (s *Scheduler) RunNow(ctx context.Context) *SchedulerJob {
	job := &SchedulerJob{
		ID:          uuid.New(),
		Name:        "refresh",
		ScheduledAt: time.Now(),
		Status:      JobStatusPending,
	}
	s.record(job)

	if s.connectivity != nil && !s.connectivity.Online(ctx) {
		s.setStatus(job, JobStatusSkipped, "offline")
		s.logger.Info().Str("job_id", job.ID.String()).Msg("device offline, skipping refresh")
		return job
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.backoff(attempt)
			s.logger.Warn().
				Err(lastErr).
				Str("job_id", job.ID.String()).
				Int("attempt", attempt).
				Dur("retry_in", delay).
				Msg("refresh failed, retrying")
			if err := sleepContext(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		s.mu.Lock()
		job.Status = JobStatusRunning
		job.Attempts = attempt + 1
		s.mu.Unlock()

		report, err := s.refresher.Refresh(ctx)
		if err == nil {
			s.complete(job, start, report)
			return job
		}
		lastErr = err

		if errors.Is(err, ErrScanInProgress) {
			s.setStatus(job, JobStatusSkipped, err.Error())
			s.logger.Info().Str("job_id", job.ID.String()).Msg("refresh already running elsewhere, skipping")
			return job
		}
		if ctx.Err() != nil {
			break
		}
	}

	s.mu.Lock()
	job.Status = JobStatusFailed
	job.Result = &JobResult{
		Success:     false,
		Error:       lastErr.Error(),
		Duration:    time.Since(start),
		CompletedAt: time.Now(),
	}
	s.mu.Unlock()

	s.logger.Error().
		Err(lastErr).
		Str("job_id", job.ID.String()).
		Int("attempts", job.Attempts).
		Msg("refresh job failed")
	return job
}

// Jobs returns a snapshot of the job history, newest first
func (s *Scheduler) Jobs() []SchedulerJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SchedulerJob, 0, len(s.jobs))
	for i := len(s.jobs) - 1; i >= 0; i-- {
		out = append(out, *s.jobs[i])
	}
	return out
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := SchedulerStats{
		Running:   s.running,
		Interval:  s.config.Interval.String(),
		TotalJobs: len(s.jobs),
	}

	for _, job := range s.jobs {
		switch job.Status {
		case JobStatusPending:
			stats.PendingJobs++
		case JobStatusRunning:
			stats.RunningJobs++
		case JobStatusCompleted:
			stats.CompletedJobs++
		case JobStatusFailed:
			stats.FailedJobs++
		case JobStatusSkipped:
			stats.SkippedJobs++
		}
	}

	return stats
}

// SchedulerStats holds scheduler statistics
type SchedulerStats struct {
	Running       bool   `json:"running"`
	Interval      string `json:"interval"`
	TotalJobs     int    `json:"total_jobs"`
	PendingJobs   int    `json:"pending_jobs"`
	RunningJobs   int    `json:"running_jobs"`
	CompletedJobs int    `json:"completed_jobs"`
	FailedJobs    int    `json:"failed_jobs"`
	SkippedJobs   int    `json:"skipped_jobs"`
}

func (s *Scheduler) record(job *SchedulerJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = append(s.jobs, job)
	if over := len(s.jobs) - s.config.HistorySize; over > 0 {
		s.jobs = append(s.jobs[:0:0], s.jobs[over:]...)
	}
}

func (s *Scheduler) setStatus(job *SchedulerJob, status JobStatus, reason string) {
	s.mu.Lock()
	job.Status = status
	job.Reason = reason
	s.mu.Unlock()
}

func (s *Scheduler) complete(job *SchedulerJob, start time.Time, report *models.ScanReport) {
	result := &JobResult{
		Success:     true,
		Duration:    time.Since(start),
		CompletedAt: time.Now(),
	}
	if report != nil {
		result.Threats = len(report.Threats)
		result.Score = report.Posture.Score
	}

	s.mu.Lock()
	job.Status = JobStatusCompleted
	job.Result = result
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", job.ID.String()).
		Int("attempts", job.Attempts).
		Int("threats", result.Threats).
		Dur("duration", result.Duration).
		Msg("refresh job completed")
}

// backoff doubles the base delay per attempt, capped at MaxRetryDelay
func (s *Scheduler) backoff(attempt int) time.Duration {
	delay := s.config.BaseRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.config.MaxRetryDelay {
			return s.config.MaxRetryDelay
		}
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
