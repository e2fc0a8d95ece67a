package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfpromise/backend/internal/catalog"
	"github.com/selfpromise/backend/internal/escrow"
	"github.com/selfpromise/backend/internal/identity"
	"github.com/selfpromise/backend/internal/ledger"
	"github.com/selfpromise/backend/internal/registry"
	"github.com/selfpromise/backend/internal/treasury"
)

const attestedID = "evaluator-test"

type fixture struct {
	bank  *treasury.Bank
	reg   *registry.Registry
	led   *ledger.Ledger
	esc   *escrow.Escrow
	coord *Coordinator
}

// newFixture wires the full chain the way main does: bank, catalog,
// registry, escrow, ledger, coordinator.
func newFixture(t *testing.T, fallback string) (*fixture, string) {
	t.Helper()

	cat, tok := catalog.NewCatalog()
	tmplID, err := cat.CreateTemplate(tok, "Gym", catalog.TypeExerciseFrequency, nil)
	require.NoError(t, err)

	bank := treasury.NewBank()
	bank.Credit("alice", 100)

	reg := registry.NewRegistry(cat, nil)
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	promiseID, err := reg.Create("alice", tmplID, nil, start, start.AddDate(0, 0, 28), fallback)
	require.NoError(t, err)

	esc := escrow.New(treasury.NewEscrowVault(bank, "vault"), nil, nil)
	led := ledger.New(reg, reg.EvaluatorGate(), identity.NewStaticVerifier(attestedID), nil)
	coord := New(reg, reg.ResolverGate(), led, esc.Resolver(), nil)

	return &fixture{bank: bank, reg: reg, led: led, esc: esc, coord: coord}, promiseID
}

func TestResolveFulfilledReturnsCollateral(t *testing.T) {
	f, promiseID := newFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.esc.Deposit(ctx, "alice", promiseID, 50))
	require.NoError(t, f.led.SubmitVerdict(ctx, promiseID, attestedID, true, 100, "kept"))

	outcome, err := f.coord.Resolve(ctx, promiseID)
	require.NoError(t, err)

	assert.True(t, outcome.Fulfilled)
	assert.Equal(t, int64(50), outcome.Amount)
	assert.Equal(t, "alice", outcome.Recipient)
	assert.Equal(t, int64(100), f.bank.Balance("alice"))

	p, err := f.reg.GetDetails(promiseID)
	require.NoError(t, err)
	assert.Equal(t, registry.StateResolved, p.State)
}

func TestResolveUnfulfilledForfeitsToFallback(t *testing.T) {
	f, promiseID := newFixture(t, "charity")
	ctx := context.Background()

	require.NoError(t, f.esc.Deposit(ctx, "alice", promiseID, 50))
	require.NoError(t, f.led.SubmitVerdict(ctx, promiseID, attestedID, false, 100, "broken"))

	outcome, err := f.coord.Resolve(ctx, promiseID)
	require.NoError(t, err)

	assert.False(t, outcome.Fulfilled)
	assert.Equal(t, "charity", outcome.Recipient)
	assert.Equal(t, int64(50), f.bank.Balance("alice"))
	assert.Equal(t, int64(50), f.bank.Balance("charity"))
}

func TestResolveUnfulfilledDefaultsToBurn(t *testing.T) {
	f, promiseID := newFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.esc.Deposit(ctx, "alice", promiseID, 50))
	require.NoError(t, f.led.SubmitVerdict(ctx, promiseID, attestedID, false, 100, "broken"))

	outcome, err := f.coord.Resolve(ctx, promiseID)
	require.NoError(t, err)
	assert.Equal(t, treasury.BurnAddress, outcome.Recipient)
	assert.Equal(t, int64(50), f.bank.Balance(treasury.BurnAddress))
}

func TestResolveBeforeVerdict(t *testing.T) {
	f, promiseID := newFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.esc.Deposit(ctx, "alice", promiseID, 50))

	_, err := f.coord.Resolve(ctx, promiseID)
	assert.ErrorIs(t, err, ErrNotYetEvaluated)

	// Nothing moved, nothing sealed.
	assert.Equal(t, int64(50), f.bank.Balance("vault"))
	p, _ := f.reg.GetDetails(promiseID)
	assert.Equal(t, registry.StateCreated, p.State)
}

func TestResolveTwice(t *testing.T) {
	f, promiseID := newFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.esc.Deposit(ctx, "alice", promiseID, 50))
	require.NoError(t, f.led.SubmitVerdict(ctx, promiseID, attestedID, true, 100, "kept"))

	_, err := f.coord.Resolve(ctx, promiseID)
	require.NoError(t, err)

	_, err = f.coord.Resolve(ctx, promiseID)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	// Paid out exactly once.
	assert.Equal(t, int64(100), f.bank.Balance("alice"))
}

func TestResolveUnknownPromise(t *testing.T) {
	f, _ := newFixture(t, "")
	_, err := f.coord.Resolve(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestResolveWithoutDepositLeavesPromiseEvaluated(t *testing.T) {
	f, promiseID := newFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.led.SubmitVerdict(ctx, promiseID, attestedID, true, 100, "kept"))

	_, err := f.coord.Resolve(ctx, promiseID)
	assert.ErrorIs(t, err, escrow.ErrNoDeposit)

	// No funds moved, so the promise must stay Evaluated for a retry after
	// the deposit situation is fixed.
	p, _ := f.reg.GetDetails(promiseID)
	assert.Equal(t, registry.StateEvaluated, p.State)
}

func TestFailedDisburseLeavesPromiseResolvable(t *testing.T) {
	f, promiseID := newFixture(t, "charity")
	ctx := context.Background()

	require.NoError(t, f.esc.Deposit(ctx, "alice", promiseID, 50))
	require.NoError(t, f.led.SubmitVerdict(ctx, promiseID, attestedID, false, 100, "broken"))

	f.bank.Freeze("charity")
	_, err := f.coord.Resolve(ctx, promiseID)
	assert.ErrorIs(t, err, escrow.ErrTransferFailed)

	p, _ := f.reg.GetDetails(promiseID)
	assert.Equal(t, registry.StateEvaluated, p.State)

	f.bank.Unfreeze("charity")
	outcome, err := f.coord.Resolve(ctx, promiseID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), outcome.Amount)
	assert.Equal(t, "charity", outcome.Recipient)
}

func TestConcurrentResolvePaysOutOnce(t *testing.T) {
	f, promiseID := newFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.esc.Deposit(ctx, "alice", promiseID, 50))
	require.NoError(t, f.led.SubmitVerdict(ctx, promiseID, attestedID, true, 100, "kept"))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.Resolve(ctx, promiseID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyResolved)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(100), f.bank.Balance("alice"))
}

func TestQuarantineBlocksResolution(t *testing.T) {
	f, promiseID := newFixture(t, "")
	ctx := context.Background()

	f.coord.quarantine(promiseID, "test fault")
	_, err := f.coord.Resolve(ctx, promiseID)
	assert.ErrorIs(t, err, ErrIntegrityFault)

	q := f.coord.Quarantined()
	assert.Contains(t, q, promiseID)

	f.coord.ClearQuarantine(promiseID)
	assert.Empty(t, f.coord.Quarantined())
}
