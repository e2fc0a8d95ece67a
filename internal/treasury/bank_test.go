package treasury

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferMovesFunds(t *testing.T) {
	b := NewBank()
	b.Credit("alice", 100)

	err := b.Transfer(context.Background(), "alice", "bob", 40)
	require.NoError(t, err)

	assert.Equal(t, int64(60), b.Balance("alice"))
	assert.Equal(t, int64(40), b.Balance("bob"))
}

func TestTransferInsufficientFunds(t *testing.T) {
	b := NewBank()
	b.Credit("alice", 10)

	err := b.Transfer(context.Background(), "alice", "bob", 50)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(10), b.Balance("alice"))
	assert.Equal(t, int64(0), b.Balance("bob"))
}

func TestTransferRejectsNonPositiveAmounts(t *testing.T) {
	b := NewBank()
	b.Credit("alice", 10)

	assert.ErrorIs(t, b.Transfer(context.Background(), "alice", "bob", 0), ErrInvalidAmount)
	assert.ErrorIs(t, b.Transfer(context.Background(), "alice", "bob", -5), ErrInvalidAmount)
}

func TestFrozenAccountCannotSendOrReceive(t *testing.T) {
	b := NewBank()
	b.Credit("alice", 100)
	b.Credit("carol", 100)

	b.Freeze("bob")
	assert.ErrorIs(t, b.Transfer(context.Background(), "alice", "bob", 10), ErrAccountFrozen)

	b.Freeze("carol")
	assert.ErrorIs(t, b.Transfer(context.Background(), "carol", "alice", 10), ErrAccountFrozen)

	b.Unfreeze("bob")
	assert.NoError(t, b.Transfer(context.Background(), "alice", "bob", 10))
}

func TestBurnAddressAlwaysAccepts(t *testing.T) {
	b := NewBank()
	b.Credit("alice", 100)

	// Even a frozen burn address accepts forfeits.
	b.Freeze(BurnAddress)
	err := b.Transfer(context.Background(), "alice", BurnAddress, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(25), b.Balance(BurnAddress))
}

func TestEscrowVaultCollectAndDisburse(t *testing.T) {
	b := NewBank()
	b.Credit("alice", 100)
	v := NewEscrowVault(b, "vault")

	require.NoError(t, v.Collect(context.Background(), "alice", 60))
	assert.Equal(t, int64(60), v.Held())
	assert.Equal(t, int64(40), b.Balance("alice"))

	require.NoError(t, v.Disburse(context.Background(), "alice", 60))
	assert.Equal(t, int64(0), v.Held())
	assert.Equal(t, int64(100), b.Balance("alice"))
}
