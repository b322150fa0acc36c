// Package model loads the bundled binary risk classifier.
//
// An artifact is a JSON document describing either a logistic regression or
// a decision-tree ensemble over the fixed feature vector. The input width is
// taken from the artifact's declared input shape and validated at load time.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidArtifact is returned when an artifact cannot be parsed or is inconsistent
	ErrInvalidArtifact = errors.New("invalid model artifact")
	// ErrDegenerateInput is returned when the declared input width is zero or negative
	ErrDegenerateInput = errors.New("degenerate model input shape")
	// ErrSignatureMismatch is returned when the artifact signature does not verify
	ErrSignatureMismatch = errors.New("model artifact signature mismatch")
	// ErrClosed is returned by Predict after Close
	ErrClosed = errors.New("classifier closed")
	// ErrInputWidth is returned by Predict when the vector length differs from InputWidth
	ErrInputWidth = errors.New("feature vector width mismatch")
)

// Kind selects the classifier family
type Kind string

const (
	KindLogistic Kind = "logistic"
	KindForest   Kind = "forest"
)

// Artifact is the serialized classifier
type Artifact struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Kind       Kind            `json:"kind"`
	InputShape []int           `json:"input_shape"`
	Features   []string        `json:"features,omitempty"`
	Logistic   *LogisticParams `json:"logistic,omitempty"`
	Forest     *ForestParams   `json:"forest,omitempty"`
}

// LogisticParams holds p = sigmoid(w.x + b)
type LogisticParams struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// ForestParams holds an averaged ensemble of binary decision trees
type ForestParams struct {
	Trees []*TreeNode `json:"trees"`
}

// TreeNode is a split (feature < threshold goes left) or a leaf carrying the
// probability of the positive (malicious) class.
type TreeNode struct {
	Feature     int       `json:"feature,omitempty"`
	Threshold   float64   `json:"threshold,omitempty"`
	Left        *TreeNode `json:"left,omitempty"`
	Right       *TreeNode `json:"right,omitempty"`
	Leaf        bool      `json:"leaf,omitempty"`
	Probability float64   `json:"probability,omitempty"`
}

// InputWidth reads the feature width from the declared shape. Shapes are
// either [N] or [batch, N].
func (a *Artifact) InputWidth() int {
	switch len(a.InputShape) {
	case 0:
		return 0
	case 1:
		return a.InputShape[0]
	default:
		return a.InputShape[1]
	}
}

// Parse decodes and validates an artifact
func Parse(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks the artifact for internal consistency
func (a *Artifact) Validate() error {
	width := a.InputWidth()
	if width <= 0 {
		return fmt.Errorf("%w: input shape %v", ErrDegenerateInput, a.InputShape)
	}
	if len(a.Features) > 0 && len(a.Features) != width {
		return fmt.Errorf("%w: %d feature names for width %d", ErrInvalidArtifact, len(a.Features), width)
	}

	switch a.Kind {
	case KindLogistic:
		if a.Logistic == nil {
			return fmt.Errorf("%w: logistic parameters missing", ErrInvalidArtifact)
		}
		if len(a.Logistic.Weights) != width {
			return fmt.Errorf("%w: %d weights for width %d", ErrInvalidArtifact, len(a.Logistic.Weights), width)
		}
	case KindForest:
		if a.Forest == nil || len(a.Forest.Trees) == 0 {
			return fmt.Errorf("%w: forest has no trees", ErrInvalidArtifact)
		}
		for i, tree := range a.Forest.Trees {
			if err := validateNode(tree, width); err != nil {
				return fmt.Errorf("%w: tree %d: %v", ErrInvalidArtifact, i, err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, a.Kind)
	}
	return nil
}

func validateNode(n *TreeNode, width int) error {
	if n == nil {
		return errors.New("nil node")
	}
	if n.Leaf {
		if n.Probability < 0 || n.Probability > 1 || math.IsNaN(n.Probability) {
			return fmt.Errorf("leaf probability %v out of range", n.Probability)
		}
		return nil
	}
	if n.Feature < 0 || n.Feature >= width {
		return fmt.Errorf("split feature %d out of range", n.Feature)
	}
	if err := validateNode(n.Left, width); err != nil {
		return err
	}
	return validateNode(n.Right, width)
}

// Classifier builds a fresh classifier from a validated artifact
func (a *Artifact) Classifier() Classifier {
	switch a.Kind {
	case KindForest:
		return &forest{width: a.InputWidth(), features: a.Features, trees: a.Forest.Trees}
	default:
		return &logistic{width: a.InputWidth(), features: a.Features, weights: a.Logistic.Weights, bias: a.Logistic.Bias}
	}
}
