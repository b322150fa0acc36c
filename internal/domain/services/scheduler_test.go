package services

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"secureguard-lab/internal/domain/models"
)

type scriptedRefresher struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (r *scriptedRefresher) Refresh(context.Context) (*models.ScanReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.ScanReport{
		Threats: []models.Threat{{PackageName: "com.example.a", RiskLevel: models.RiskLevelLow}},
		Posture: models.SecurityPosture{Score: 98},
	}, nil
}

type staticConnectivity bool

func (s staticConnectivity) Online(context.Context) bool { return bool(s) }

func testSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:       time.Hour,
		MaxRetries:     2,
		BaseRetryDelay: time.Millisecond,
		MaxRetryDelay:  4 * time.Millisecond,
		HistorySize:    3,
	}
}

func TestSchedulerRetriesThenSucceeds(t *testing.T) {
	r := &scriptedRefresher{errs: []error{errors.New("transient")}}
	s := NewScheduler(testSchedulerConfig(), r, staticConnectivity(true), testLogger)

	job := s.RunNow(context.Background())
	if job.Status != JobStatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
	if job.Attempts != 2 || r.calls != 2 {
		t.Fatalf("attempts = %d, calls = %d", job.Attempts, r.calls)
	}
	if job.Result == nil || !job.Result.Success || job.Result.Threats != 1 || job.Result.Score != 98 {
		t.Fatalf("result = %+v", job.Result)
	}
}

func TestSchedulerFailsAfterMaxRetries(t *testing.T) {
	boom := errors.New("store down")
	r := &scriptedRefresher{errs: []error{boom, boom, boom, boom}}
	s := NewScheduler(testSchedulerConfig(), r, nil, testLogger)

	job := s.RunNow(context.Background())
	if job.Status != JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.Attempts != 3 || r.calls != 3 {
		t.Fatalf("attempts = %d, calls = %d; want 3", job.Attempts, r.calls)
	}
	if job.Result == nil || job.Result.Error != boom.Error() {
		t.Fatalf("result = %+v", job.Result)
	}
}

func TestSchedulerSkips(t *testing.T) {
	r := &scriptedRefresher{}
	s := NewScheduler(testSchedulerConfig(), r, staticConnectivity(false), testLogger)
	if job := s.RunNow(context.Background()); job.Status != JobStatusSkipped || r.calls != 0 {
		t.Fatalf("offline run: status = %s, calls = %d", job.Status, r.calls)
	}

	r = &scriptedRefresher{errs: []error{ErrScanInProgress}}
	s = NewScheduler(testSchedulerConfig(), r, nil, testLogger)
	if job := s.RunNow(context.Background()); job.Status != JobStatusSkipped || r.calls != 1 {
		t.Fatalf("busy run: status = %s, calls = %d", job.Status, r.calls)
	}
}

func TestSchedulerHistoryIsBounded(t *testing.T) {
	s := NewScheduler(testSchedulerConfig(), &scriptedRefresher{}, nil, testLogger)

	var last *SchedulerJob
	for i := 0; i < 5; i++ {
		last = s.RunNow(context.Background())
	}
	jobs := s.Jobs()
	if len(jobs) != 3 {
		t.Fatalf("history = %d, want 3", len(jobs))
	}
	if jobs[0].ID != last.ID {
		t.Error("history must be newest first")
	}
	if stats := s.Stats(); stats.CompletedJobs != 3 || stats.TotalJobs != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSchedulerBackoff(t *testing.T) {
	s := NewScheduler(SchedulerConfig{BaseRetryDelay: time.Second, MaxRetryDelay: 5 * time.Second}, &scriptedRefresher{}, nil, testLogger)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := s.backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestSchedulerStartRunsOnStartAndStops(t *testing.T) {
	r := &scriptedRefresher{}
	cfg := testSchedulerConfig()
	cfg.RunOnStart = true
	s := NewScheduler(cfg, r, nil, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(s.Jobs()) == 0 {
		select {
		case <-deadline:
			t.Fatal("initial run did not happen")
		case <-time.After(5 * time.Millisecond):
		}
	}
	s.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Start returned %v after Stop", err)
	}
}

func TestTCPConnectivityChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no loopback listener: %v", err)
	}
	addr := ln.Addr().String()

	if !(TCPConnectivityChecker{Address: addr, Timeout: time.Second}).Online(context.Background()) {
		t.Fatal("listener reachable, want online")
	}
	ln.Close()
	if (TCPConnectivityChecker{Address: addr, Timeout: 200 * time.Millisecond}).Online(context.Background()) {
		t.Fatal("closed port, want offline")
	}
}
