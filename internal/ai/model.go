package ai

import (
	"context"
	"fmt"

	"github.com/ruby4mag/firewatch-backend/internal/imaging"
)

// Kind names the question a model answers.
type Kind string

const (
	KindFire      Kind = "fire"
	KindStructure Kind = "structure"
	KindSmoke     Kind = "smoke"
)

// labelCounts fixes the size of each kind's label set.
var labelCounts = map[Kind]int{
	KindFire:      2,
	KindStructure: 3,
	KindSmoke:     3,
}

// ModelSpec describes one served model: where to call it and how to prepare
// pixels for it. Adding a model is a registry entry, not code.
type ModelSpec struct {
	Kind    Kind                `yaml:"kind"`
	Name    string              `yaml:"name"`
	Input   imaging.Size        `yaml:"input"`
	Scaling imaging.ScalingMode `yaml:"scaling"`
	Labels  []string            `yaml:"labels"`
}

func (s ModelSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("model of kind %q has no name", s.Kind)
	}
	want, ok := labelCounts[s.Kind]
	if !ok {
		return fmt.Errorf("model %s: unknown kind %q", s.Name, s.Kind)
	}
	if len(s.Labels) != want {
		return fmt.Errorf("model %s: kind %s needs %d labels, got %d", s.Name, s.Kind, want, len(s.Labels))
	}
	if s.Input.Width <= 0 || s.Input.Height <= 0 {
		return fmt.Errorf("model %s: invalid input size %s", s.Name, s.Input)
	}
	if !s.Scaling.Valid() {
		return fmt.Errorf("model %s: unknown scaling mode %q", s.Name, s.Scaling)
	}
	return nil
}

// Provider runs a named model on one image tensor and returns its score vector.
type Provider interface {
	Predict(ctx context.Context, model string, t *imaging.Tensor) ([]float64, error)
}

// Prediction is a model output reduced to its top label.
type Prediction struct {
	Label      string
	Confidence float64 // percent, 0-100
}

// Percent renders Confidence the way reports store it, e.g. "87.42%".
func (p Prediction) Percent() string {
	return fmt.Sprintf("%.2f%%", p.Confidence)
}

// InferenceError wraps a failed or malformed model call.
type InferenceError struct {
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference on model %s failed: %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Argmax returns the index and value of the largest score. Ties resolve to
// the first occurrence. An empty slice gives -1.
func Argmax(scores []float64) (int, float64) {
	if len(scores) == 0 {
		return -1, 0
	}
	idx, best := 0, scores[0]
	for i, v := range scores[1:] {
		if v > best {
			idx, best = i+1, v
		}
	}
	return idx, best
}

// Infer calls the provider once for spec and reduces the result to a label
// and a percentage confidence.
func Infer(ctx context.Context, p Provider, spec ModelSpec, t *imaging.Tensor) (Prediction, error) {
	scores, err := p.Predict(ctx, spec.Name, t)
	if err != nil {
		return Prediction{}, &InferenceError{Model: spec.Name, Err: err}
	}
	if len(scores) != len(spec.Labels) {
		return Prediction{}, &InferenceError{
			Model: spec.Name,
			Err:   fmt.Errorf("got %d scores for %d labels", len(scores), len(spec.Labels)),
		}
	}
	idx, best := Argmax(scores)
	return Prediction{Label: spec.Labels[idx], Confidence: best * 100}, nil
}
