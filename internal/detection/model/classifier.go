package model

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Classifier maps a feature vector to the probability of the malicious class
type Classifier interface {
	InputWidth() int
	// Features returns the declared slot names, nil when the artifact names none
	Features() []string
	Predict(vector []float64) (float64, error)
	Close() error
}

type logistic struct {
	width    int
	features []string
	weights  []float64
	bias    float64
	closed  atomic.Bool
}

func (l *logistic) InputWidth() int { return l.width }

func (l *logistic) Features() []string { return l.features }

func (l *logistic) Predict(vector []float64) (float64, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	if len(vector) != l.width {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrInputWidth, len(vector), l.width)
	}

	z := l.bias
	for i, x := range vector {
		z += l.weights[i] * x
	}
	return checkProbability(1 / (1 + math.Exp(-z)))
}

func (l *logistic) Close() error {
	l.closed.Store(true)
	return nil
}

type forest struct {
	width    int
	features []string
	trees    []*TreeNode
	closed   atomic.Bool
}

func (f *forest) InputWidth() int { return f.width }

func (f *forest) Features() []string { return f.features }

func (f *forest) Predict(vector []float64) (float64, error) {
	if f.closed.Load() {
		return 0, ErrClosed
	}
	if len(vector) != f.width {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrInputWidth, len(vector), f.width)
	}

	var sum float64
	for _, tree := range f.trees {
		sum += walk(tree, vector)
	}
	return checkProbability(sum / float64(len(f.trees)))
}

func (f *forest) Close() error {
	f.closed.Store(true)
	return nil
}

func walk(node *TreeNode, point []float64) float64 {
	for !node.Leaf {
		if point[node.Feature] < node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Probability
}

func checkProbability(p float64) (float64, error) {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("model produced non-finite output %v", p)
	}
	return math.Min(1, math.Max(0, p)), nil
}
