/*
SPIFFE Integration
Verifies the evaluator's workload identity using SPIFFE/SPIRE.
*/

package identity

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
)

// SPIFFEVerifier verifies evaluator SVIDs against the SPIRE workload API.
// Deployments that run the evaluator behind a SPIRE agent use this instead
// of the StaticVerifier.
type SPIFFEVerifier struct {
	source *workloadapi.X509Source
}

// NewSPIFFEVerifier connects to the SPIRE agent at socketPath.
func NewSPIFFEVerifier(socketPath string) (*SPIFFEVerifier, error) {
	// Use a timeout to avoid blocking startup when SPIRE agent is unavailable
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	source, err := workloadapi.NewX509Source(
		ctx,
		workloadapi.WithClientOptions(workloadapi.WithAddr(socketPath)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SPIRE: %w", err)
	}

	slog.Info("Connected to SPIRE agent", "socket_path", socketPath)
	return &SPIFFEVerifier{source: source}, nil
}

// VerifyEvaluator checks that the presented SPIFFE ID matches the SVID the
// workload API attests for the evaluator process.
func (sv *SPIFFEVerifier) VerifyEvaluator(_ context.Context, evaluatorID string) error {
	id, err := spiffeid.FromString(evaluatorID)
	if err != nil {
		return fmt.Errorf("%w: invalid SPIFFE ID: %v", ErrIdentityMismatch, err)
	}

	svid, err := sv.source.GetX509SVID()
	if err != nil {
		return fmt.Errorf("failed to get SVID: %w", err)
	}

	if svid.ID.String() != id.String() {
		return fmt.Errorf("%w: expected %s, got %s", ErrIdentityMismatch, svid.ID, id)
	}

	slog.Info("Verified evaluator SPIFFE ID", "spiffe_id", evaluatorID,
		"svid_hash", svidHash(svid.Certificates[0].Raw))
	return nil
}

// svidHash calculates a 64-bit hash of the SVID certificate for log
// correlation.
func svidHash(certDER []byte) uint64 {
	hash := sha256.Sum256(certDER)

	var result uint64
	for i := 0; i < 8; i++ {
		result = (result << 8) | uint64(hash[i])
	}
	return result
}

// GetTLSConfig returns an mTLS config authenticated by the SPIFFE source.
func (sv *SPIFFEVerifier) GetTLSConfig() (*tls.Config, error) {
	return tlsconfig.MTLSClientConfig(sv.source, sv.source, tlsconfig.AuthorizeAny()), nil
}

// Close releases the workload API source.
func (sv *SPIFFEVerifier) Close() error {
	return sv.source.Close()
}

// EvaluatorSPIFFEID builds the SPIFFE ID for a named evaluator workload.
func EvaluatorSPIFFEID(trustDomain, name string) string {
	return fmt.Sprintf("spiffe://%s/evaluator/%s", trustDomain, name)
}
