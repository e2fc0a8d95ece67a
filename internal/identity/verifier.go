// Package identity provides the verified-evaluator-identity capability.
//
// The core only stores and compares identity values; proving that the
// evaluator process actually ran inside an isolated execution environment
// is the attestation layer's job, surfaced here as a Verifier.
package identity

import (
	"context"
	"errors"
	"fmt"
)

// ErrIdentityMismatch means the presented identity is not the attested
// evaluator for this deployment.
var ErrIdentityMismatch = errors.New("IDENTITY_MISMATCH: not the attested evaluator")

// Verifier checks that a caller-presented identity is the single attested
// evaluator identity configured for the deployment.
type Verifier interface {
	VerifyEvaluator(ctx context.Context, evaluatorID string) error
}

// StaticVerifier compares against a pre-configured attested identity value.
// Used when attestation happened out of band (e.g. the evaluator identity
// was registered at deployment time).
type StaticVerifier struct {
	attested string
}

// NewStaticVerifier creates a verifier for a fixed attested identity.
func NewStaticVerifier(attestedID string) *StaticVerifier {
	return &StaticVerifier{attested: attestedID}
}

// VerifyEvaluator compares the presented identity with the attested one.
func (v *StaticVerifier) VerifyEvaluator(_ context.Context, evaluatorID string) error {
	if v.attested == "" {
		return fmt.Errorf("%w: no attested evaluator configured", ErrIdentityMismatch)
	}
	if evaluatorID != v.attested {
		return fmt.Errorf("%w: got %q", ErrIdentityMismatch, evaluatorID)
	}
	return nil
}
