package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/spf13/afero"

	"secureguard-lab/pkg/logger"
)

// Loader reads the artifact from disk once per scan session. Parsed artifacts
// are cached by content digest, so a replaced file is picked up on the next Open.
type Loader struct {
	fs            afero.Fs
	path          string
	signaturePath string
	verifier      *Verifier
	logger        *logger.Logger

	mu     sync.Mutex
	digest string
	cached *Artifact
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithSignature requires a detached signature at sigPath verified by v
func WithSignature(sigPath string, v *Verifier) LoaderOption {
	return func(l *Loader) {
		l.signaturePath = sigPath
		l.verifier = v
	}
}

// NewLoader creates a loader for the artifact at path
func NewLoader(fs afero.Fs, path string, log *logger.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		fs:     fs,
		path:   path,
		logger: log.WithComponent("model-loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the artifact location
func (l *Loader) Path() string {
	return l.path
}

// Open loads the artifact and returns a classifier owned by the caller, who
// must Close it at the end of the session.
func (l *Loader) Open(ctx context.Context) (Classifier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	if l.verifier != nil {
		sig, err := afero.ReadFile(l.fs, l.signaturePath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read signature: %v", ErrSignatureMismatch, err)
		}
		if err := l.verifier.Verify(data, sig); err != nil {
			return nil, err
		}
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached == nil || l.digest != digest {
		artifact, err := Parse(data)
		if err != nil {
			return nil, err
		}
		l.cached = artifact
		l.digest = digest

		l.logger.Info().
			Str("path", l.path).
			Str("name", artifact.Name).
			Str("version", artifact.Version).
			Str("kind", string(artifact.Kind)).
			Int("input_width", artifact.InputWidth()).
			Msg("model artifact loaded")
	}

	return l.cached.Classifier(), nil
}
