package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"secureguard-lab/internal/detection/model"
	"secureguard-lab/internal/domain/models"
	"secureguard-lab/pkg/logger"
)

var testLogger = logger.NewNop()

const (
	permReadSMS     = "android.permission.READ_SMS"
	permCamera      = "android.permission.CAMERA"
	permRecordAudio = "android.permission.RECORD_AUDIO"
	permInternet    = "android.permission.INTERNET"
)

type fakeApp struct {
	app     models.InstalledApp
	meta    *models.PackageMetadata
	metaErr error
	panics  bool
}

type fakeRegistry struct {
	mu      sync.Mutex
	apps    []fakeApp
	listErr error
}

func (r *fakeRegistry) add(pkg string, system bool, granted ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps = append(r.apps, fakeApp{
		app: models.InstalledApp{PackageName: pkg, AppName: pkg + " app", IsSystemApp: system},
		meta: &models.PackageMetadata{
			PackageName:         pkg,
			DeclaredPermissions: granted,
			GrantedPermissions:  granted,
		},
	})
}

func (r *fakeRegistry) ListInstalledApplications(context.Context) ([]models.InstalledApp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]models.InstalledApp, len(r.apps))
	for i, a := range r.apps {
		out[i] = a.app
	}
	return out, nil
}

func (r *fakeRegistry) PackageMetadata(_ context.Context, pkg string) (*models.PackageMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.apps {
		if a.app.PackageName != pkg {
			continue
		}
		if a.panics {
			panic("metadata blew up")
		}
		if a.metaErr != nil {
			return nil, a.metaErr
		}
		return a.meta, nil
	}
	return nil, fmt.Errorf("package %s not found", pkg)
}

type fakeClassifier struct {
	width    int
	features []string
	score    func(vec []float64) float64
	closed   bool
}

func (c *fakeClassifier) InputWidth() int { return c.width }

func (c *fakeClassifier) Features() []string { return c.features }

func (c *fakeClassifier) Predict(vec []float64) (float64, error) {
	if c.closed {
		return 0, model.ErrClosed
	}
	return c.score(vec), nil
}

func (c *fakeClassifier) Close() error {
	c.closed = true
	return nil
}

type fakeOpener struct {
	mu       sync.Mutex
	score    func(vec []float64) float64
	width    int
	features []string
	err      error
	opened   []*fakeClassifier
}

func (o *fakeOpener) Open(context.Context) (model.Classifier, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	width := o.width
	if width == 0 {
		width = models.FeatureWidth
	}
	c := &fakeClassifier{width: width, features: o.features, score: o.score}
	o.opened = append(o.opened, c)
	return c, nil
}

// scoreWhen returns high when the dangerous permission slot is set
func scoreWhen(permission string, high float64) func([]float64) float64 {
	idx := models.DangerousPermissionIndex(permission)
	return func(vec []float64) float64 {
		if vec[idx] == 1 {
			return high
		}
		return 0.1
	}
}

type memoryThreats struct {
	mu         sync.Mutex
	threats    []models.Threat
	replaceErr error
	replaces   int
	inFlight   int
	maxFlight  int
}

func (s *memoryThreats) ReplaceAll(_ context.Context, threats []models.Threat) error {
	s.mu.Lock()
	s.inFlight++
	s.maxFlight = max(s.maxFlight, s.inFlight)
	s.mu.Unlock()

	time.Sleep(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.replaces++
	s.threats = append([]models.Threat(nil), threats...)
	return nil
}

func (s *memoryThreats) GetAll(context.Context) ([]models.Threat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.Threat(nil), s.threats...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RiskLevel.Rank() != out[j].RiskLevel.Rank() {
			return out[i].RiskLevel.Rank() < out[j].RiskLevel.Rank()
		}
		return out[i].PackageName < out[j].PackageName
	})
	return out, nil
}

type memoryWhitelist struct {
	mu   sync.Mutex
	pkgs []string
}

func (w *memoryWhitelist) Add(_ context.Context, pkg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.pkgs {
		if p == pkg {
			return nil
		}
	}
	w.pkgs = append(w.pkgs, pkg)
	return nil
}

func (w *memoryWhitelist) Remove(_ context.Context, pkg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, p := range w.pkgs {
		if p == pkg {
			w.pkgs = append(w.pkgs[:i], w.pkgs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (w *memoryWhitelist) GetAll(context.Context) ([]models.WhitelistedApp, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.WhitelistedApp, len(w.pkgs))
	for i, p := range w.pkgs {
		out[i] = models.WhitelistedApp{PackageName: p}
	}
	return out, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []models.Threat
	err   error
}

func (n *recordingNotifier) NotifyHighRiskThreat(_ context.Context, t models.Threat) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, t)
	return n.err
}

type recordingPublisher struct {
	mu      sync.Mutex
	reports []*models.ScanReport
}

func (p *recordingPublisher) PublishScanCompleted(_ context.Context, r *models.ScanReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return nil
}

type busyLocker struct{}

func (busyLocker) AcquireLock(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}

func (busyLocker) ReleaseLock(context.Context, string) error { return nil }

var errStoreDown = errors.New("store down")
