package treasury

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// BurnAddress is the well-known sink identity. Collateral forfeited by an
// unfulfilled promise is sent here when no fallback recipient was chosen.
const BurnAddress = "0x000000000000000000000000000000000000dEaD"

var (
	ErrInsufficientFunds = errors.New("INSUFFICIENT_FUNDS: account balance too low")
	ErrAccountFrozen     = errors.New("ACCOUNT_FROZEN: account cannot send or receive")
	ErrInvalidAmount     = errors.New("INVALID_AMOUNT: amount must be positive")
)

// Bank holds token balances for principals, the escrow vault and fallback
// recipients. Balances are integral token units; fractional collateral is
// not supported.
type Bank struct {
	mu       sync.Mutex
	balances map[string]int64
	frozen   map[string]bool
	journal  *Journal // optional Postgres journal, nil in memory-only mode
}

// NewBank creates an empty in-memory bank.
func NewBank() *Bank {
	return &Bank{
		balances: make(map[string]int64),
		frozen:   make(map[string]bool),
	}
}

// WithJournal attaches a Postgres transfer journal. Every transfer is
// appended best-effort; journal failures never block fund movement.
func (b *Bank) WithJournal(j *Journal) *Bank {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal = j
	return b
}

// Credit mints amount into an account. Used to seed demo balances and by
// tests; production deployments seed from the journal replay in main.
func (b *Bank) Credit(account string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
}

// Balance returns the current balance of an account (0 if unknown).
func (b *Bank) Balance(account string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account]
}

// Freeze marks an account as unable to send or receive. A frozen recipient
// makes transfers fail, which is how the escrow rollback path gets hit.
func (b *Bank) Freeze(account string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen[account] = true
}

// Unfreeze re-enables an account.
func (b *Bank) Unfreeze(account string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.frozen, account)
}

// Transfer atomically moves amount from one account to another.
// The burn address always accepts funds.
func (b *Bank) Transfer(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen[from] {
		return fmt.Errorf("%w: %s", ErrAccountFrozen, from)
	}
	if to != BurnAddress && b.frozen[to] {
		return fmt.Errorf("%w: %s", ErrAccountFrozen, to)
	}
	if b.balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, b.balances[from], amount)
	}

	b.balances[from] -= amount
	b.balances[to] += amount

	if b.journal != nil {
		if err := b.journal.Append(ctx, from, to, amount); err != nil {
			log.Printf("[Treasury] journal append failed (%s -> %s, %d): %v", from, to, amount, err)
		}
	}
	return nil
}

// EscrowVault adapts the bank to the escrow's view of funds: collateral is
// collected from a principal into a single vault account and later disbursed
// to the owner or the fallback recipient.
type EscrowVault struct {
	bank    *Bank
	account string
}

// NewEscrowVault creates a vault backed by the given bank account.
func NewEscrowVault(bank *Bank, account string) *EscrowVault {
	if account == "" {
		account = "escrow-vault"
	}
	return &EscrowVault{bank: bank, account: account}
}

// Collect moves collateral from a principal into the vault.
func (v *EscrowVault) Collect(ctx context.Context, from string, amount int64) error {
	return v.bank.Transfer(ctx, from, v.account, amount)
}

// Disburse moves held collateral from the vault to a recipient.
func (v *EscrowVault) Disburse(ctx context.Context, to string, amount int64) error {
	return v.bank.Transfer(ctx, v.account, to, amount)
}

// Held returns the total collateral currently in the vault.
func (v *EscrowVault) Held() int64 {
	return v.bank.Balance(v.account)
}
