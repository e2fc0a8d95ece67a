// Package ledger records evaluation verdicts: at most one per promise,
// write-once, guarded by evaluator-identity verification.
//
// The identity check is the trust boundary. It is the only thing standing
// between "any caller can fabricate a verdict" and "only the attested
// evaluator process can".
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/selfpromise/backend/internal/events"
	"github.com/selfpromise/backend/internal/identity"
	"github.com/selfpromise/backend/internal/registry"
)

const (
	// MinConfidence and MaxConfidence bound verdict confidence scores.
	MinConfidence = 0
	MaxConfidence = 100
)

var (
	ErrUnauthorizedEvaluator = errors.New("UNAUTHORIZED_EVALUATOR: identity is not the attested evaluator")
	ErrPromiseNotFound       = errors.New("PROMISE_NOT_FOUND: verdict references unknown promise")
	ErrAlreadyEvaluated      = errors.New("ALREADY_EVALUATED: a verdict already exists for this promise")
	ErrConfidenceOutOfRange  = errors.New("CONFIDENCE_OUT_OF_RANGE: confidence must be within 0-100")
	ErrNotEvaluated          = errors.New("NOT_EVALUATED: no verdict exists for this promise")
)

// Verdict is the evaluator's determination for one promise.
type Verdict struct {
	PromiseID   string    `json:"promise_id"`
	Fulfilled   bool      `json:"fulfilled"`
	Confidence  int       `json:"confidence"`
	Reasoning   string    `json:"reasoning"`
	EvaluatorID string    `json:"evaluator_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Ledger stores verdicts and drives the Created -> Evaluated transition.
type Ledger struct {
	mu       sync.Mutex
	verdicts map[string]*Verdict
	verifier identity.Verifier
	reg      *registry.Registry
	gate     *registry.EvaluatorGate
	emitter  events.Emitter
	audit    *AuditTree
}

// New creates a ledger. The EvaluatorGate is the registry capability that
// lets this ledger — and nothing else — mark promises Evaluated.
func New(reg *registry.Registry, gate *registry.EvaluatorGate, verifier identity.Verifier, emitter events.Emitter) *Ledger {
	return &Ledger{
		verdicts: make(map[string]*Verdict),
		verifier: verifier,
		reg:      reg,
		gate:     gate,
		emitter:  emitter,
		audit:    NewAuditTree(),
	}
}

// SubmitVerdict records the single verdict for a promise and marks it
// Evaluated. Store and mark happen under one lock, with the registry's
// atomic transition as the backstop, so an "evaluated-but-unmarked" ghost
// state cannot be observed.
func (l *Ledger) SubmitVerdict(ctx context.Context, promiseID, evaluatorID string, fulfilled bool, confidence int, reasoning string) error {
	if err := l.verifier.VerifyEvaluator(ctx, evaluatorID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorizedEvaluator, err)
	}

	if _, err := l.reg.GetDetails(promiseID); err != nil {
		return fmt.Errorf("%w: %s", ErrPromiseNotFound, promiseID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.verdicts[promiseID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyEvaluated, promiseID)
	}

	if confidence < MinConfidence || confidence > MaxConfidence {
		return fmt.Errorf("%w: got %d", ErrConfidenceOutOfRange, confidence)
	}

	// Mark first: if the transition is rejected the verdict is never
	// observably stored. A transition failure here means another writer
	// won the race or the promise already left Created.
	if err := l.gate.MarkEvaluated(promiseID); err != nil {
		if errors.Is(err, registry.ErrInvalidTransition) {
			return fmt.Errorf("%w: %s", ErrAlreadyEvaluated, promiseID)
		}
		return err
	}

	v := &Verdict{
		PromiseID:   promiseID,
		Fulfilled:   fulfilled,
		Confidence:  confidence,
		Reasoning:   reasoning,
		EvaluatorID: evaluatorID,
		SubmittedAt: time.Now(),
	}
	l.verdicts[promiseID] = v
	l.audit.Append(promiseID, fmt.Sprintf("fulfilled=%t confidence=%d", fulfilled, confidence))

	events.PromiseEvaluated(l.emitter, promiseID, fulfilled, confidence)
	log.Printf("[Ledger] verdict recorded for %s: fulfilled=%t confidence=%d", promiseID, fulfilled, confidence)
	return nil
}

// GetVerdict returns the verdict for a promise.
func (l *Ledger) GetVerdict(promiseID string) (Verdict, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.verdicts[promiseID]
	if !ok {
		return Verdict{}, fmt.Errorf("%w: %s", ErrNotEvaluated, promiseID)
	}
	return *v, nil
}

// AuditRoot returns the current root hash of the verdict audit tree.
func (l *Ledger) AuditRoot() string {
	return l.audit.RootHash()
}
