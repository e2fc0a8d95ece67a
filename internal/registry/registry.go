// Package registry owns individual promise instances and their lifecycle.
//
// The backbone state machine is Created -> Evaluated -> Resolved. There are
// no other edges: transitions are checked atomically per promise id, and a
// call arriving out of order fails with ErrInvalidTransition and leaves the
// state unchanged.
package registry

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/selfpromise/backend/internal/catalog"
	"github.com/selfpromise/backend/internal/events"
	"github.com/selfpromise/backend/internal/treasury"
)

var (
	ErrNotFound          = errors.New("NOT_FOUND: promise does not exist")
	ErrTemplateInactive  = errors.New("TEMPLATE_INACTIVE: template missing or deactivated")
	ErrInvalidWindow     = errors.New("INVALID_WINDOW: start must be strictly before end")
	ErrInvalidTransition = errors.New("INVALID_TRANSITION: promise lifecycle violation")

	// ErrIDCollision means two distinct creations derived the same promise id.
	// This is an integrity fault, never expected in practice.
	ErrIDCollision = errors.New("ID_COLLISION: promise id already exists")
)

// State is the lifecycle state of a promise.
type State int

const (
	StateCreated State = iota
	StateEvaluated
	StateResolved
)

// String returns the string representation of a state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateEvaluated:
		return "EVALUATED"
	case StateResolved:
		return "RESOLVED"
	default:
		return "UNKNOWN"
	}
}

// Promise is one principal's time-boxed commitment. The promise type is
// copied from the template at creation, not referenced live — a template
// deactivated later must not change promises already made from it.
type Promise struct {
	ID                string            `json:"id"`
	Owner             string            `json:"owner"`
	TemplateID        uint64            `json:"template_id"`
	PromiseType       string            `json:"promise_type"`
	Params            map[string]string `json:"params"`
	Start             time.Time         `json:"start"`
	End               time.Time         `json:"end"`
	FallbackRecipient string            `json:"fallback_recipient"`
	State             State             `json:"state"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Registry stores promises and enforces the lifecycle state machine.
type Registry struct {
	mu       sync.Mutex
	promises map[string]*Promise
	catalog  *catalog.Catalog
	emitter  events.Emitter

	evalGate    *EvaluatorGate
	resolveGate *ResolverGate
}

// NewRegistry creates a registry backed by the given template catalog.
func NewRegistry(cat *catalog.Catalog, emitter events.Emitter) *Registry {
	r := &Registry{
		promises: make(map[string]*Promise),
		catalog:  cat,
		emitter:  emitter,
	}
	r.evalGate = &EvaluatorGate{r: r}
	r.resolveGate = &ResolverGate{r: r}
	return r
}

// Create registers a new promise from a template. Parameters are the
// template defaults overlaid with the caller's overrides; an override
// replaces the default wholesale, never merges into it.
func (r *Registry) Create(owner string, templateID uint64, overrides map[string]string, start, end time.Time, fallbackRecipient string) (string, error) {
	if !start.Before(end) {
		return "", fmt.Errorf("%w: start=%s end=%s", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	tmpl, err := r.catalog.Get(templateID)
	if err != nil || !tmpl.Active {
		return "", fmt.Errorf("%w: template %d", ErrTemplateInactive, templateID)
	}

	params := make(map[string]string, len(tmpl.DefaultParams)+len(overrides))
	for k, v := range tmpl.DefaultParams {
		params[k] = v
	}
	for k, v := range overrides {
		params[k] = v
	}

	if fallbackRecipient == "" {
		fallbackRecipient = treasury.BurnAddress
	}

	id := derivePromiseID(owner, templateID, start, end, uuid.New().String())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.promises[id]; exists {
		// Unrecoverable integrity fault: the nonce makes ids unique by
		// construction, so a collision means storage corruption.
		log.Printf("[Registry] FATAL promise id collision: %s", id)
		return "", fmt.Errorf("%w: %s", ErrIDCollision, id)
	}

	r.promises[id] = &Promise{
		ID:                id,
		Owner:             owner,
		TemplateID:        templateID,
		PromiseType:       tmpl.PromiseType,
		Params:            params,
		Start:             start,
		End:               end,
		FallbackRecipient: fallbackRecipient,
		State:             StateCreated,
		CreatedAt:         time.Now(),
	}

	events.PromiseCreated(r.emitter, id, owner, templateID)
	return id, nil
}

// GetDetails returns a copy of a promise. Safe at any lifecycle stage.
func (r *Registry) GetDetails(id string) (Promise, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.promises[id]
	if !ok {
		return Promise{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p.copy(), nil
}

// transition performs the atomic check-and-set for one lifecycle edge.
func (r *Registry) transition(id string, from, to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.promises[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.State != from {
		return fmt.Errorf("%w: %s is %s, cannot move to %s", ErrInvalidTransition, id, p.State, to)
	}
	p.State = to
	return nil
}

func (p *Promise) copy() Promise {
	params := make(map[string]string, len(p.Params))
	for k, v := range p.Params {
		params[k] = v
	}
	c := *p
	c.Params = params
	return c
}

// derivePromiseID computes the deterministic promise identifier from the
// creation inputs plus a per-creation nonce.
func derivePromiseID(owner string, templateID uint64, start, end time.Time, nonce string) string {
	h := sha3.New256()
	fmt.Fprintf(h, "%s|%d|%d|%d|%s", owner, templateID, start.Unix(), end.Unix(), nonce)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// EvaluatorGate is the capability to mark a promise Evaluated. Only the
// Evaluation Ledger is handed this gate at wiring time; possession of the
// gate is the authorization check.
type EvaluatorGate struct {
	r *Registry
}

// EvaluatorGate returns the single mark-evaluated capability.
func (r *Registry) EvaluatorGate() *EvaluatorGate { return r.evalGate }

// MarkEvaluated moves a promise Created -> Evaluated.
func (g *EvaluatorGate) MarkEvaluated(id string) error {
	return g.r.transition(id, StateCreated, StateEvaluated)
}

// ResolverGate is the capability to mark a promise Resolved. Only the
// Resolution Coordinator is handed this gate at wiring time.
type ResolverGate struct {
	r *Registry
}

// ResolverGate returns the single mark-resolved capability.
func (r *Registry) ResolverGate() *ResolverGate { return r.resolveGate }

// MarkResolved moves a promise Evaluated -> Resolved.
func (g *ResolverGate) MarkResolved(id string) error {
	return g.r.transition(id, StateEvaluated, StateResolved)
}
