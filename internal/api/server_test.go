package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfpromise/backend/internal/catalog"
	"github.com/selfpromise/backend/internal/coordinator"
	"github.com/selfpromise/backend/internal/escrow"
	"github.com/selfpromise/backend/internal/evaluator"
	"github.com/selfpromise/backend/internal/evidence"
	"github.com/selfpromise/backend/internal/identity"
	"github.com/selfpromise/backend/internal/ledger"
	"github.com/selfpromise/backend/internal/registry"
	"github.com/selfpromise/backend/internal/treasury"
)

const attestedID = "evaluator-test"

// newTestServer wires the whole stack with a static evidence bundle that
// satisfies the active-zone-minutes builtin.
func newTestServer(t *testing.T) (*httptest.Server, *treasury.Bank) {
	t.Helper()

	cat, tok := catalog.NewCatalog()
	cat.SeedBuiltins(tok)

	bank := treasury.NewBank()
	bank.Credit("alice", 100)

	reg := registry.NewRegistry(cat, nil)
	esc := escrow.New(treasury.NewEscrowVault(bank, "vault"), nil, nil)
	led := ledger.New(reg, reg.EvaluatorGate(), identity.NewStaticVerifier(attestedID), nil)
	coord := coordinator.New(reg, reg.ResolverGate(), led, esc.Resolver(), nil)

	evals := evaluator.NewRegistry()
	evals.Register(evaluator.NewRuleBased())

	srv := NewServer(Deps{
		Catalog:     cat,
		AdminToken:  tok,
		Registry:    reg,
		Escrow:      esc,
		Ledger:      led,
		Coordinator: coord,
		Bank:        bank,
		Evaluators:  evals,
		Evidence: &evidence.StaticSource{Bundle: evidence.Bundle{
			Summary: evidence.ActivitySummary{ActiveZoneMinutes: 200},
		}},
		DefaultEvaluator: "rule_based",
		EvaluatorID:      attestedID,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, bank
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestFullPromiseRoundTrip(t *testing.T) {
	ts, bank := newTestServer(t)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	resp, created := postJSON(t, ts.URL+"/api/promises", map[string]interface{}{
		"owner":       "alice",
		"template_id": 4, // Active Zone Minutes builtin
		"start":       start.Format(time.RFC3339),
		"end":         start.AddDate(0, 0, 7).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	promiseID := created["promise_id"].(string)

	resp, _ = postJSON(t, ts.URL+"/api/deposits", map[string]interface{}{
		"principal":  "alice",
		"promise_id": promiseID,
		"amount":     50,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int64(50), bank.Balance("alice"))

	resp, verdict := postJSON(t, ts.URL+"/api/promises/"+promiseID+"/evaluate", map[string]interface{}{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, verdict["fulfilled"])

	resp, outcome := postJSON(t, ts.URL+"/api/promises/"+promiseID+"/resolve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", outcome["recipient"])
	assert.Equal(t, int64(100), bank.Balance("alice"))

	// Second resolve conflicts.
	resp, errBody := postJSON(t, ts.URL+"/api/promises/"+promiseID+"/resolve", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_RESOLVED", errBody["error"])

	resp, p := getJSON(t, ts.URL+"/api/promises/"+promiseID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "RESOLVED", p["state"])
}

func TestVerdictPushRequiresAttestedIdentity(t *testing.T) {
	ts, _ := newTestServer(t)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	_, created := postJSON(t, ts.URL+"/api/promises", map[string]interface{}{
		"owner":       "alice",
		"template_id": 1,
		"start":       start.Format(time.RFC3339),
		"end":         start.AddDate(0, 0, 28).Format(time.RFC3339),
	})
	promiseID := created["promise_id"].(string)

	resp, body := postJSON(t, ts.URL+"/api/verdicts", map[string]interface{}{
		"promise_id":   promiseID,
		"evaluator_id": "impostor",
		"fulfilled":    true,
		"confidence":   90,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED_EVALUATOR", body["error"])

	resp, _ = postJSON(t, ts.URL+"/api/verdicts", map[string]interface{}{
		"promise_id":   promiseID,
		"evaluator_id": attestedID,
		"fulfilled":    true,
		"confidence":   90,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	ts, _ := newTestServer(t)

	// Unknown promise.
	resp, body := getJSON(t, ts.URL+"/api/promises/0xmissing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["error"])

	// Invalid window.
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	resp, body = postJSON(t, ts.URL+"/api/promises", map[string]interface{}{
		"owner":       "alice",
		"template_id": 1,
		"start":       start.Format(time.RFC3339),
		"end":         start.Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_WINDOW", body["error"])

	// Deposit against an unknown promise.
	resp, body = postJSON(t, ts.URL+"/api/deposits", map[string]interface{}{
		"principal":  "alice",
		"promise_id": "0xmissing",
		"amount":     10,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["error"])
}

func TestTemplateAdminSurface(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, created := postJSON(t, ts.URL+"/api/templates", map[string]interface{}{
		"name":           "Daily Walk",
		"promise_type":   "exercise_frequency",
		"default_params": map[string]string{"frequency": "1", "period": "day"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["template_id"].(float64)

	resp, _ = postJSON(t, ts.URL+fmt.Sprintf("/api/templates/%.0f/deactivate", id), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, tmpl := getJSON(t, ts.URL+fmt.Sprintf("/api/templates/%.0f", id))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, tmpl["active"])
}

func TestPromiseStatusView(t *testing.T) {
	ts, _ := newTestServer(t)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	_, created := postJSON(t, ts.URL+"/api/promises", map[string]interface{}{
		"owner":       "alice",
		"template_id": 4,
		"start":       start.Format(time.RFC3339),
		"end":         start.AddDate(0, 0, 7).Format(time.RFC3339),
	})
	promiseID := created["promise_id"].(string)

	// Fresh promise: no deposit, no verdict.
	resp, status := getJSON(t, ts.URL+"/api/promises/"+promiseID+"/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CREATED", status["state"])
	assert.Nil(t, status["deposit"])
	assert.Nil(t, status["verdict"])

	resp, _ = postJSON(t, ts.URL+"/api/deposits", map[string]interface{}{
		"principal":  "alice",
		"promise_id": promiseID,
		"amount":     50,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, status = getJSON(t, ts.URL+"/api/promises/"+promiseID+"/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	deposit, ok := status["deposit"].(map[string]interface{})
	require.True(t, ok, "deposit should appear in the combined view")
	assert.Equal(t, float64(50), deposit["amount"])
	assert.Nil(t, status["verdict"])

	resp, _ = postJSON(t, ts.URL+"/api/promises/"+promiseID+"/evaluate", map[string]interface{}{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// One request now answers state, collateral and verdict together.
	resp, status = getJSON(t, ts.URL+"/api/promises/"+promiseID+"/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "EVALUATED", status["state"])
	verdict, ok := status["verdict"].(map[string]interface{})
	require.True(t, ok, "verdict should appear in the combined view")
	assert.Equal(t, true, verdict["fulfilled"])

	resp, _ = postJSON(t, ts.URL+"/api/promises/"+promiseID+"/resolve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// After resolution the deposit is cleared; the verdict remains.
	resp, status = getJSON(t, ts.URL+"/api/promises/"+promiseID+"/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "RESOLVED", status["state"])
	assert.Nil(t, status["deposit"])
	assert.NotNil(t, status["verdict"])
}

func TestDepositRejectedOnceEvaluated(t *testing.T) {
	ts, bank := newTestServer(t)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	_, created := postJSON(t, ts.URL+"/api/promises", map[string]interface{}{
		"owner":       "alice",
		"template_id": 4,
		"start":       start.Format(time.RFC3339),
		"end":         start.AddDate(0, 0, 7).Format(time.RFC3339),
	})
	promiseID := created["promise_id"].(string)

	resp, _ := postJSON(t, ts.URL+"/api/promises/"+promiseID+"/evaluate", map[string]interface{}{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Collateral bound after evaluation could never be released.
	resp, body := postJSON(t, ts.URL+"/api/deposits", map[string]interface{}{
		"principal":  "alice",
		"promise_id": promiseID,
		"amount":     50,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "PROMISE_CLOSED", body["error"])
	assert.Equal(t, int64(100), bank.Balance("alice"), "no funds should move")
}
