// Package handlers implements the REST surface over the promise core.
// Handlers are constructor functions closing over their dependencies, one
// file per domain area.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/selfpromise/backend/internal/catalog"
	"github.com/selfpromise/backend/internal/coordinator"
	"github.com/selfpromise/backend/internal/escrow"
	"github.com/selfpromise/backend/internal/ledger"
	"github.com/selfpromise/backend/internal/registry"
)

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps a core error onto its HTTP status. The body carries the
// machine-readable error kind plus the full sentinel message, which names the
// promise or deposit the invariant blocked on.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{
		"error":  errorKind(err),
		"detail": err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, escrow.ErrNoDeposit),
		errors.Is(err, ledger.ErrPromiseNotFound),
		errors.Is(err, ledger.ErrNotEvaluated):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidWindow),
		errors.Is(err, registry.ErrTemplateInactive),
		errors.Is(err, escrow.ErrZeroAmount),
		errors.Is(err, ledger.ErrConfidenceOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnauthorized),
		errors.Is(err, ledger.ErrUnauthorizedEvaluator):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrDuplicateActiveDeposit),
		errors.Is(err, ErrPromiseClosed),
		errors.Is(err, ledger.ErrAlreadyEvaluated),
		errors.Is(err, coordinator.ErrAlreadyResolved),
		errors.Is(err, coordinator.ErrNotYetEvaluated),
		errors.Is(err, registry.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, escrow.ErrTransferFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, coordinator.ErrIntegrityFault):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// errorKind extracts the stable CAPS_PREFIX from a sentinel error message,
// e.g. "NO_DEPOSIT: ..." -> "NO_DEPOSIT".
func errorKind(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ":"); i > 0 {
		head := msg[:i]
		if head == strings.ToUpper(head) && !strings.Contains(head, " ") {
			return head
		}
	}
	return "INTERNAL"
}
