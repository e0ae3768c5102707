package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ruby4mag/firewatch-backend/internal/imaging"
	"github.com/ruby4mag/firewatch-backend/internal/metrics"
)

// Capabilities switches each detector on or off for a deployment.
type Capabilities struct {
	Fire      bool
	Structure bool
	Smoke     bool
}

func (c Capabilities) Enabled(k Kind) bool {
	switch k {
	case KindFire:
		return c.Fire
	case KindStructure:
		return c.Structure
	case KindSmoke:
		return c.Smoke
	}
	return false
}

// Results holds one prediction per enabled detector; disabled ones stay nil.
type Results struct {
	Fire      *Prediction
	Structure *Prediction
	Smoke     *Prediction
}

// StatusChecker is implemented by providers that can report model readiness.
type StatusChecker interface {
	Status(ctx context.Context, model string) error
}

// Engine runs the enabled models for an uploaded image. It is safe for
// concurrent use; the number of provider calls in flight across all requests
// never exceeds the configured concurrency.
type Engine struct {
	provider Provider
	specs    []ModelSpec
	caps      Capabilities
	sem       *semaphore.Weighted
	maxPixels int
}

// NewEngine keeps the specs whose kind is enabled in caps. Every enabled kind
// must have a spec.
func NewEngine(p Provider, registry []ModelSpec, caps Capabilities, concurrency int) (*Engine, error) {
	if concurrency < 1 {
		return nil, fmt.Errorf("inference concurrency must be at least 1, got %d", concurrency)
	}
	byKind := make(map[Kind]ModelSpec, len(registry))
	for _, s := range registry {
		byKind[s.Kind] = s
	}

	e := &Engine{
		provider:  p,
		caps:      caps,
		sem:       semaphore.NewWeighted(int64(concurrency)),
		maxPixels: imaging.DefaultMaxPixels,
	}
	for _, k := range []Kind{KindFire, KindStructure, KindSmoke} {
		if !caps.Enabled(k) {
			continue
		}
		s, ok := byKind[k]
		if !ok {
			return nil, fmt.Errorf("%s detection is enabled but no %s model is registered", k, k)
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		e.specs = append(e.specs, s)
	}
	return e, nil
}

func (e *Engine) Capabilities() Capabilities { return e.caps }

// SetMaxPixels changes the largest image, in pixels, Run will decode.
func (e *Engine) SetMaxPixels(n int) {
	if n > 0 {
		e.maxPixels = n
	}
}

// Models returns the specs the engine will run, in fire, structure, smoke order.
func (e *Engine) Models() []ModelSpec {
	return append([]ModelSpec(nil), e.specs...)
}

// Warmup asks the provider whether every enabled model is loaded.
func (e *Engine) Warmup(ctx context.Context) error {
	sc, ok := e.provider.(StatusChecker)
	if !ok {
		return nil
	}
	for _, s := range e.specs {
		if err := sc.Status(ctx, s.Name); err != nil {
			return err
		}
		log.WithFields(log.Fields{"model": s.Name, "kind": s.Kind, "input": s.Input.String()}).Info("model ready")
	}
	return nil
}

type inputKey struct {
	size    imaging.Size
	scaling imaging.ScalingMode
}

// Run decodes raw once, prepares one tensor per distinct input size and
// scaling mode, then calls each enabled model exactly once. Decoding holds an
// inference slot so full-size images in memory are bounded like model calls.
func (e *Engine) Run(ctx context.Context, raw []byte) (Results, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return Results{}, err
	}
	tensors, err := e.prepare(raw)
	e.sem.Release(1)
	if err != nil {
		return Results{}, err
	}

	preds := make([]Prediction, len(e.specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range e.specs {
		i, s := i, s
		t := tensors[inputKey{s.Input, s.Scaling}]
		g.Go(func() error {
			p, err := e.infer(gctx, s, t)
			preds[i] = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Results{}, err
	}

	var res Results
	for i, s := range e.specs {
		p := preds[i]
		switch s.Kind {
		case KindFire:
			res.Fire = &p
		case KindStructure:
			res.Structure = &p
		case KindSmoke:
			res.Smoke = &p
		}
	}
	return res, nil
}

func (e *Engine) prepare(raw []byte) (map[inputKey]*imaging.Tensor, error) {
	img, err := imaging.Decode(raw, e.maxPixels)
	if err != nil {
		return nil, err
	}
	tensors := make(map[inputKey]*imaging.Tensor)
	for _, s := range e.specs {
		key := inputKey{s.Input, s.Scaling}
		if _, ok := tensors[key]; ok {
			continue
		}
		t, err := imaging.FromImage(img, s.Input, s.Scaling)
		if err != nil {
			return nil, fmt.Errorf("prepare input for %s: %w", s.Name, err)
		}
		tensors[key] = t
	}
	return tensors, nil
}

func (e *Engine) infer(ctx context.Context, s ModelSpec, t *imaging.Tensor) (Prediction, error) {
	start := time.Now()
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return Prediction{}, &InferenceError{Model: s.Name, Err: err}
	}
	metrics.InferenceInFlight.Inc()
	p, err := Infer(ctx, e.provider, s, t)
	metrics.InferenceInFlight.Dec()
	e.sem.Release(1)

	metrics.InferenceDurationSeconds.WithLabelValues(s.Name, metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return Prediction{}, err
	}
	metrics.PredictionsTotal.WithLabelValues(s.Name, p.Label).Inc()
	log.WithFields(log.Fields{
		"model":      s.Name,
		"label":      p.Label,
		"confidence": p.Percent(),
	}).Debug("inference done")
	return p, nil
}
