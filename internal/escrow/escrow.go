// Package escrow holds one principal's collateral per active promise.
//
// The escrow knows nothing about promise semantics: only an opaque promise
// identifier, a principal, an amount and a binary verdict at release time.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/selfpromise/backend/internal/events"
)

var (
	ErrZeroAmount             = errors.New("ZERO_AMOUNT: collateral must be strictly positive")
	ErrDuplicateActiveDeposit = errors.New("DUPLICATE_ACTIVE_DEPOSIT: principal already has an active deposit")
	ErrNoDeposit              = errors.New("NO_DEPOSIT: no active deposit for principal and promise")
	ErrTransferFailed         = errors.New("TRANSFER_FAILED: collateral transfer rejected")
)

// Vault moves actual funds. The escrow records who holds what; the vault is
// where the tokens live.
type Vault interface {
	// Collect moves collateral from a principal into the vault.
	Collect(ctx context.Context, from string, amount int64) error

	// Disburse moves held collateral from the vault to a recipient.
	Disburse(ctx context.Context, to string, amount int64) error
}

// Deposit is one principal's held collateral, bound to a single promise.
type Deposit struct {
	Principal string    `json:"principal"`
	PromiseID string    `json:"promise_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Escrow records active deposits, at most one per principal.
type Escrow struct {
	mu       sync.Mutex
	deposits map[string]*Deposit // principal -> active deposit
	vault    Vault
	emitter  events.Emitter
	metrics  *Metrics

	resolver *ResolverHandle
}

// New creates an escrow over the given vault. Metrics may be nil.
func New(vault Vault, emitter events.Emitter, m *Metrics) *Escrow {
	e := &Escrow{
		deposits: make(map[string]*Deposit),
		vault:    vault,
		emitter:  emitter,
		metrics:  m,
	}
	e.resolver = &ResolverHandle{e: e}
	return e
}

// Deposit collects collateral from a principal and binds it to a promise id.
// A principal may not open a second deposit until the first is resolved.
func (e *Escrow) Deposit(ctx context.Context, principal, promiseID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrZeroAmount, amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if d, ok := e.deposits[principal]; ok && d.Amount > 0 {
		return fmt.Errorf("%w: %s bound to %s", ErrDuplicateActiveDeposit, principal, d.PromiseID)
	}

	if err := e.vault.Collect(ctx, principal, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.deposits[principal] = &Deposit{
		Principal: principal,
		PromiseID: promiseID,
		Amount:    amount,
		CreatedAt: time.Now(),
	}

	if e.metrics != nil {
		e.metrics.RecordDeposit(amount)
	}
	events.EscrowDeposited(e.emitter, promiseID, principal, amount)
	log.Printf("[Escrow] held %d for %s (promise %s)", amount, principal, promiseID)
	return nil
}

// GetDeposit returns the principal's active deposit.
func (e *Escrow) GetDeposit(principal string) (Deposit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.deposits[principal]
	if !ok || d.Amount == 0 {
		return Deposit{}, fmt.Errorf("%w: %s", ErrNoDeposit, principal)
	}
	return *d, nil
}

// ResolverHandle is the capability to clear a deposit. Only the Resolution
// Coordinator is handed this at wiring time.
type ResolverHandle struct {
	e *Escrow
}

// Resolver returns the single resolve capability.
func (e *Escrow) Resolver() *ResolverHandle { return e.resolver }

// Resolve clears the deposit bound to (principal, promiseID) and transfers
// the full amount to the principal when fulfilled, else to the fallback
// recipient. The record is zeroed before the transfer so a re-entrant call
// sees no deposit; if the transfer fails the record is restored atomically
// and ErrTransferFailed is returned.
func (h *ResolverHandle) Resolve(ctx context.Context, promiseID, principal string, fulfilled bool, fallbackRecipient string) (int64, error) {
	e := h.e
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.deposits[principal]
	if !ok || d.Amount == 0 || d.PromiseID != promiseID {
		return 0, fmt.Errorf("%w: principal %s, promise %s", ErrNoDeposit, principal, promiseID)
	}

	// Clear before transfer: the clearing operation is what makes a second
	// resolve attempt observe NO_DEPOSIT instead of double-paying.
	cleared := *d
	delete(e.deposits, principal)

	recipient := principal
	if !fulfilled {
		recipient = fallbackRecipient
	}

	if err := e.vault.Disburse(ctx, recipient, cleared.Amount); err != nil {
		// A failed transfer must never silently zero a deposit: restore
		// the record under the same lock before reporting failure.
		restored := cleared
		e.deposits[principal] = &restored
		if e.metrics != nil {
			e.metrics.RecordResolution("failed", cleared.Amount)
		}
		return 0, fmt.Errorf("%w: disburse to %s: %v", ErrTransferFailed, recipient, err)
	}

	outcome := "returned"
	if !fulfilled {
		outcome = "forfeited"
	}
	if e.metrics != nil {
		e.metrics.RecordResolution(outcome, cleared.Amount)
	}
	events.EscrowReleased(e.emitter, promiseID, principal, fulfilled, cleared.Amount, recipient)
	log.Printf("[Escrow] released %d for promise %s -> %s (%s)", cleared.Amount, promiseID, recipient, outcome)
	return cleared.Amount, nil
}
