// Package evaluator scores a promise against its evidence and produces a
// verdict. Evaluators are pure with respect to ledger state: they compute
// a Result, and the caller is responsible for recording it.
package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/selfpromise/backend/internal/evidence"
)

// Params carries everything an evaluator needs to judge one promise.
type Params struct {
	PromiseID   string
	PromiseType string
	Start       time.Time
	End         time.Time
	Values      map[string]string // template defaults overlaid with user overrides
}

// Result is the evaluator's determination. Confidence is an integer
// percentage in [0,100].
type Result struct {
	Fulfilled  bool                   `json:"fulfilled"`
	Confidence int                    `json:"confidence"`
	Reasoning  string                 `json:"reasoning"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Evaluator judges whether the evidence shows the promise was kept.
type Evaluator interface {
	Evaluate(ctx context.Context, p Params, ev evidence.Bundle) (Result, error)
	Name() string
}

// Registry maps evaluator names to instances so the serving layer can pick
// one by configuration.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewRegistry returns an empty evaluator registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]Evaluator)}
}

// Register adds an evaluator under its own name, replacing any previous one.
func (r *Registry) Register(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[e.Name()] = e
}

// Get returns the named evaluator.
func (r *Registry) Get(name string) (Evaluator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[name]
	if !ok {
		return nil, fmt.Errorf("unknown evaluator %q", name)
	}
	return e, nil
}
