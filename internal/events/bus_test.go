package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeByType(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TypePromiseCreated)

	bus.Emit(TypePromiseCreated, "registry", "0xp1", map[string]interface{}{"promise_id": "0xp1"})
	bus.Emit(TypePromiseResolved, "coordinator", "0xp1", nil)

	select {
	case e := <-ch:
		assert.Equal(t, TypePromiseCreated, e.Type)
		assert.Equal(t, "0xp1", e.Subject)
		assert.Equal(t, "1.0", e.SpecVersion)
		assert.NotEmpty(t, e.ID)
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}

	// The resolved event was not subscribed to.
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()

	bus.Emit(TypeEscrowDeposited, "escrow", "0xp1", nil)
	bus.Emit(TypeEscrowReleased, "escrow", "0xp1", nil)

	got := []string{(<-ch).Type, (<-ch).Type}
	assert.Equal(t, []string{TypeEscrowDeposited, TypeEscrowReleased}, got)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TypePromiseEvaluated)
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)
}

func TestSlowSubscriberIsSkipped(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TypePromiseCreated)

	// Overfill the buffer; publishing must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			bus.Emit(TypePromiseCreated, "registry", "0xp1", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
	assert.Equal(t, 100, len(ch))
}

func TestDomainEmitHelpers(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TypeEscrowReleased, TypePromiseResolved)

	EscrowReleased(bus, "0xp1", "alice", false, 50, "charity")
	PromiseResolved(bus, "0xp1", false, 50, "charity")

	e := <-ch
	assert.Equal(t, TypeEscrowReleased, e.Type)
	assert.Equal(t, "escrow", e.Source)
	assert.Equal(t, "0xp1", e.Subject)
	assert.Equal(t, "alice", e.Data["principal"])
	assert.Equal(t, "charity", e.Data["recipient"])
	assert.Equal(t, int64(50), e.Data["amount"])

	e = <-ch
	assert.Equal(t, TypePromiseResolved, e.Type)
	assert.Equal(t, "coordinator", e.Source)
	assert.Equal(t, "0xp1", e.Data["promise_id"])
}

func TestDomainEmitHelpersTolerateNilEmitter(t *testing.T) {
	assert.NotPanics(t, func() {
		PromiseCreated(nil, "0xp1", "alice", 1)
		PromiseEvaluated(nil, "0xp1", true, 90)
		PromiseResolved(nil, "0xp1", true, 50, "alice")
		EscrowDeposited(nil, "0xp1", "alice", 50)
		EscrowReleased(nil, "0xp1", "alice", true, 50, "alice")
	})
}

func TestSSEFormat(t *testing.T) {
	e := NewEvent(TypePromiseResolved, "coordinator", "0xp1", map[string]interface{}{"fulfilled": true})
	out, err := e.SSEFormat()
	require.NoError(t, err)

	assert.Contains(t, string(out), "event: promise.resolved\n")
	assert.Contains(t, string(out), "id: "+e.ID)
}
