package services

import (
	"context"
	"slices"
	"sync"

	"secureguard-lab/internal/detection/model"
	"secureguard-lab/internal/domain/models"
	"secureguard-lab/pkg/logger"
)

// RiskModel wraps the binary classifier for one scan session. Every failure
// path scores 0.0 so classification falls through to the permission heuristic.
type RiskModel struct {
	opener ModelOpener
	logger *logger.Logger

	mu         sync.Mutex
	classifier model.Classifier
	loadErr    error
}

// NewRiskModel creates an unloaded risk model
func NewRiskModel(opener ModelOpener, log *logger.Logger) *RiskModel {
	return &RiskModel{
		opener: opener,
		logger: log.WithComponent("risk-model"),
	}
}

// Load opens the classifier for this session. A failed load is logged and
// remembered; Score then abstains.
func (m *RiskModel) Load(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opener == nil {
		m.loadErr = errNoModel
		m.logger.Warn().Msg("no risk model configured, using permission heuristic only")
		return
	}

	c, err := m.opener.Open(ctx)
	if err != nil {
		m.loadErr = err
		m.logger.Error().Err(err).Msg("error loading risk model")
		return
	}
	if names := c.Features(); len(names) > 0 && !slices.Equal(names, models.FeatureNames()) {
		if err := c.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("failed to release risk model")
		}
		m.loadErr = errFeatureLayout
		m.logger.Warn().
			Strs("model_features", names).
			Msg("model feature layout does not match feature catalog, model will abstain")
		return
	}
	if c.InputWidth() != models.FeatureWidth {
		m.logger.Warn().
			Int("model_width", c.InputWidth()).
			Int("feature_width", models.FeatureWidth).
			Msg("model input width does not match feature catalog, model will abstain")
	}
	m.classifier = c
	m.loadErr = nil
}

// Available reports whether a classifier is loaded
func (m *RiskModel) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.classifier != nil
}

// InputWidth returns the loaded model's declared width, 0 when unavailable
func (m *RiskModel) InputWidth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.classifier == nil {
		return 0
	}
	return m.classifier.InputWidth()
}

// Score returns the risk probability in [0,1], or 0.0 when the model abstains
func (m *RiskModel) Score(vector models.FeatureVector) float64 {
	m.mu.Lock()
	c := m.classifier
	m.mu.Unlock()

	if c == nil {
		return 0
	}
	if len(vector) != c.InputWidth() {
		m.logger.Debug().
			Int("vector_width", len(vector)).
			Int("model_width", c.InputWidth()).
			Msg("feature vector size does not match model input size")
		return 0
	}

	score, err := c.Predict(vector)
	if err != nil {
		m.logger.Warn().Err(err).Msg("error running model inference")
		return 0
	}
	return score
}

// Release frees the classifier at the end of the session
func (m *RiskModel) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.classifier != nil {
		if err := m.classifier.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("failed to release risk model")
		}
		m.classifier = nil
	}
}

// LoadError returns why the last Load left the model unavailable
func (m *RiskModel) LoadError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadErr
}
