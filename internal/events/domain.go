package events

// Typed emit helpers for the promise domain. Every event's subject is the
// promise id, and the payload field names stay consistent no matter which
// component emits. All helpers tolerate a nil Emitter so core packages can
// be wired without a bus.

// PromiseCreated announces a new promise instance.
func PromiseCreated(e Emitter, promiseID, owner string, templateID uint64) {
	if e == nil {
		return
	}
	e.Emit(TypePromiseCreated, "registry", promiseID, map[string]interface{}{
		"promise_id":  promiseID,
		"owner":       owner,
		"template_id": templateID,
	})
}

// PromiseEvaluated announces a recorded verdict.
func PromiseEvaluated(e Emitter, promiseID string, fulfilled bool, confidence int) {
	if e == nil {
		return
	}
	e.Emit(TypePromiseEvaluated, "ledger", promiseID, map[string]interface{}{
		"promise_id": promiseID,
		"fulfilled":  fulfilled,
		"confidence": confidence,
	})
}

// PromiseResolved announces a sealed promise and where its collateral went.
func PromiseResolved(e Emitter, promiseID string, fulfilled bool, amount int64, recipient string) {
	if e == nil {
		return
	}
	e.Emit(TypePromiseResolved, "coordinator", promiseID, map[string]interface{}{
		"promise_id": promiseID,
		"fulfilled":  fulfilled,
		"amount":     amount,
		"recipient":  recipient,
	})
}

// EscrowDeposited announces collateral taken into custody.
func EscrowDeposited(e Emitter, promiseID, principal string, amount int64) {
	if e == nil {
		return
	}
	e.Emit(TypeEscrowDeposited, "escrow", promiseID, map[string]interface{}{
		"promise_id": promiseID,
		"principal":  principal,
		"amount":     amount,
	})
}

// EscrowReleased announces collateral leaving custody.
func EscrowReleased(e Emitter, promiseID, principal string, fulfilled bool, amount int64, recipient string) {
	if e == nil {
		return
	}
	e.Emit(TypeEscrowReleased, "escrow", promiseID, map[string]interface{}{
		"promise_id": promiseID,
		"principal":  principal,
		"fulfilled":  fulfilled,
		"amount":     amount,
		"recipient":  recipient,
	})
}
