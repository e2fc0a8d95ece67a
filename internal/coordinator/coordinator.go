// Package coordinator composes Registry, Ledger and Escrow into the single
// resolution path. It is the only component allowed to read a recorded
// verdict and instruct the escrow to move funds, and the only one allowed
// to mark a promise Resolved.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/selfpromise/backend/internal/escrow"
	"github.com/selfpromise/backend/internal/events"
	"github.com/selfpromise/backend/internal/ledger"
	"github.com/selfpromise/backend/internal/registry"
)

var (
	ErrNotYetEvaluated = errors.New("NOT_YET_EVALUATED: no verdict exists for this promise")
	ErrAlreadyResolved = errors.New("ALREADY_RESOLVED: promise was already resolved")

	// ErrIntegrityFault means escrow moved funds but the promise could not
	// be marked Resolved. The promise id is quarantined: no further
	// mutating call succeeds until an operator clears it. Never retried
	// automatically.
	ErrIntegrityFault = errors.New("INTEGRITY_FAULT: escrow and registry state diverged, manual reconciliation required")
)

// Outcome describes a completed resolution.
type Outcome struct {
	PromiseID string `json:"promise_id"`
	Fulfilled bool   `json:"fulfilled"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
}

// Coordinator serializes resolution per promise id and enforces the
// fund-movement-before-state-seal ordering.
type Coordinator struct {
	reg     *registry.Registry
	gate    *registry.ResolverGate
	ledger  *ledger.Ledger
	escrow  *escrow.ResolverHandle
	emitter events.Emitter

	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	quarantined map[string]string // promise id -> fault description
}

// New wires the coordinator. The ResolverGate and ResolverHandle are the
// capabilities that make this the only component able to seal a promise
// and clear its deposit.
func New(reg *registry.Registry, gate *registry.ResolverGate, led *ledger.Ledger, esc *escrow.ResolverHandle, emitter events.Emitter) *Coordinator {
	return &Coordinator{
		reg:         reg,
		gate:        gate,
		ledger:      led,
		escrow:      esc,
		emitter:     emitter,
		locks:       make(map[string]*sync.Mutex),
		quarantined: make(map[string]string),
	}
}

// lockFor returns the per-promise mutex, creating it on first use.
func (c *Coordinator) lockFor(promiseID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.locks[promiseID]
	if !ok {
		m = &sync.Mutex{}
		c.locks[promiseID] = m
	}
	return m
}

// Resolve reads the verdict for a promise and settles its collateral:
// the full escrowed amount goes back to the owner when fulfilled, to the
// promise's fallback recipient otherwise. The promise is marked Resolved
// only after the escrow confirms the transfer.
func (c *Coordinator) Resolve(ctx context.Context, promiseID string) (Outcome, error) {
	lock := c.lockFor(promiseID)
	lock.Lock()
	defer lock.Unlock()

	if reason, bad := c.isQuarantined(promiseID); bad {
		return Outcome{}, fmt.Errorf("%w: %s (%s)", ErrIntegrityFault, promiseID, reason)
	}

	p, err := c.reg.GetDetails(promiseID)
	if err != nil {
		return Outcome{}, err
	}

	switch p.State {
	case registry.StateResolved:
		return Outcome{}, fmt.Errorf("%w: %s", ErrAlreadyResolved, promiseID)
	case registry.StateCreated:
		return Outcome{}, fmt.Errorf("%w: %s", ErrNotYetEvaluated, promiseID)
	}

	// State is Evaluated, so the verdict is guaranteed to exist.
	v, err := c.ledger.GetVerdict(promiseID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %s has no verdict despite Evaluated state", ErrIntegrityFault, promiseID)
	}

	amount, err := c.escrow.Resolve(ctx, promiseID, p.Owner, v.Fulfilled, p.FallbackRecipient)
	if err != nil {
		return Outcome{}, err
	}

	// Funds have moved. Sealing the state must follow; if it cannot, the
	// promise is quarantined for manual reconciliation — retrying could
	// pay out a second time.
	if err := c.gate.MarkResolved(promiseID); err != nil {
		c.quarantine(promiseID, err.Error())
		log.Printf("[Coordinator] CRITICAL integrity fault on %s: funds moved but markResolved failed: %v", promiseID, err)
		return Outcome{}, fmt.Errorf("%w: %s", ErrIntegrityFault, promiseID)
	}

	recipient := p.Owner
	if !v.Fulfilled {
		recipient = p.FallbackRecipient
	}

	events.PromiseResolved(c.emitter, promiseID, v.Fulfilled, amount, recipient)
	log.Printf("[Coordinator] resolved %s: fulfilled=%t amount=%d -> %s", promiseID, v.Fulfilled, amount, recipient)

	return Outcome{
		PromiseID: promiseID,
		Fulfilled: v.Fulfilled,
		Amount:    amount,
		Recipient: recipient,
	}, nil
}

func (c *Coordinator) isQuarantined(promiseID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reason, ok := c.quarantined[promiseID]
	return reason, ok
}

func (c *Coordinator) quarantine(promiseID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quarantined[promiseID] = reason
}

// Quarantined lists promise ids currently held for manual reconciliation.
func (c *Coordinator) Quarantined() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.quarantined))
	for id, reason := range c.quarantined {
		out[id] = reason
	}
	return out
}

// ClearQuarantine releases a promise id after an operator has reconciled
// escrow and registry state by hand.
func (c *Coordinator) ClearQuarantine(promiseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.quarantined, promiseID)
}
