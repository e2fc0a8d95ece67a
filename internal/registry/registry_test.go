package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfpromise/backend/internal/catalog"
	"github.com/selfpromise/backend/internal/treasury"
)

func newTestRegistry(t *testing.T) (*Registry, uint64, catalog.AdminToken, *catalog.Catalog) {
	t.Helper()
	cat, tok := catalog.NewCatalog()
	id, err := cat.CreateTemplate(tok, "Gym", catalog.TypeExerciseFrequency, map[string]string{
		"frequency": "3",
		"period":    "week",
	})
	require.NoError(t, err)
	return NewRegistry(cat, nil), id, tok, cat
}

func window() (time.Time, time.Time) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 28)
}

func TestCreateOverlaysDefaultsWithOverrides(t *testing.T) {
	reg, tmplID, _, _ := newTestRegistry(t)
	start, end := window()

	id, err := reg.Create("alice", tmplID, map[string]string{"frequency": "5"}, start, end, "")
	require.NoError(t, err)

	p, err := reg.GetDetails(id)
	require.NoError(t, err)
	assert.Equal(t, "5", p.Params["frequency"])
	assert.Equal(t, "week", p.Params["period"])
	assert.Equal(t, catalog.TypeExerciseFrequency, p.PromiseType)
	assert.Equal(t, StateCreated, p.State)
}

func TestCreateDefaultsFallbackToBurnAddress(t *testing.T) {
	reg, tmplID, _, _ := newTestRegistry(t)
	start, end := window()

	id, err := reg.Create("alice", tmplID, nil, start, end, "")
	require.NoError(t, err)

	p, err := reg.GetDetails(id)
	require.NoError(t, err)
	assert.Equal(t, treasury.BurnAddress, p.FallbackRecipient)
}

func TestCreateRejectsInvalidWindow(t *testing.T) {
	reg, tmplID, _, _ := newTestRegistry(t)
	start, _ := window()

	_, err := reg.Create("alice", tmplID, nil, start, start, "")
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = reg.Create("alice", tmplID, nil, start, start.Add(-time.Hour), "")
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestCreateRejectsInactiveTemplate(t *testing.T) {
	reg, tmplID, tok, cat := newTestRegistry(t)
	start, end := window()

	require.NoError(t, cat.Deactivate(tok, tmplID))
	_, err := reg.Create("alice", tmplID, nil, start, end, "")
	assert.ErrorIs(t, err, ErrTemplateInactive)

	_, err = reg.Create("alice", 99, nil, start, end, "")
	assert.ErrorIs(t, err, ErrTemplateInactive)
}

func TestDeactivationDoesNotTouchExistingPromises(t *testing.T) {
	reg, tmplID, tok, cat := newTestRegistry(t)
	start, end := window()

	id, err := reg.Create("alice", tmplID, nil, start, end, "")
	require.NoError(t, err)

	require.NoError(t, cat.Deactivate(tok, tmplID))

	p, err := reg.GetDetails(id)
	require.NoError(t, err)
	assert.Equal(t, catalog.TypeExerciseFrequency, p.PromiseType)
	assert.Equal(t, StateCreated, p.State)
}

func TestPromiseIDFormat(t *testing.T) {
	reg, tmplID, _, _ := newTestRegistry(t)
	start, end := window()

	id, err := reg.Create("alice", tmplID, nil, start, end, "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id, "0x"))
	assert.Len(t, id, 2+64)
}

func TestIdenticalInputsYieldDistinctIDs(t *testing.T) {
	reg, tmplID, _, _ := newTestRegistry(t)
	start, end := window()

	id1, err := reg.Create("alice", tmplID, nil, start, end, "")
	require.NoError(t, err)
	id2, err := reg.Create("alice", tmplID, nil, start, end, "")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestLifecycleOnlyMovesForward(t *testing.T) {
	reg, tmplID, _, _ := newTestRegistry(t)
	start, end := window()

	id, err := reg.Create("alice", tmplID, nil, start, end, "")
	require.NoError(t, err)

	// Resolve before evaluate is not a legal edge.
	assert.ErrorIs(t, reg.ResolverGate().MarkResolved(id), ErrInvalidTransition)

	require.NoError(t, reg.EvaluatorGate().MarkEvaluated(id))
	assert.ErrorIs(t, reg.EvaluatorGate().MarkEvaluated(id), ErrInvalidTransition)

	require.NoError(t, reg.ResolverGate().MarkResolved(id))
	assert.ErrorIs(t, reg.ResolverGate().MarkResolved(id), ErrInvalidTransition)

	p, err := reg.GetDetails(id)
	require.NoError(t, err)
	assert.Equal(t, StateResolved, p.State)
}

func TestGateRejectsUnknownPromise(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t)
	assert.ErrorIs(t, reg.EvaluatorGate().MarkEvaluated("0xdoesnotexist"), ErrNotFound)
}

func TestConcurrentMarkEvaluatedSingleWinner(t *testing.T) {
	reg, tmplID, _, _ := newTestRegistry(t)
	start, end := window()

	id, err := reg.Create("alice", tmplID, nil, start, end, "")
	require.NoError(t, err)

	const n = 16
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			results <- reg.EvaluatorGate().MarkEvaluated(id)
		}()
	}

	wins := 0
	for i := 0; i < n; i++ {
		if err := <-results; err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, wins)
}
