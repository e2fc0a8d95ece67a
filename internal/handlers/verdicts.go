package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/selfpromise/backend/internal/evaluator"
	"github.com/selfpromise/backend/internal/evidence"
	"github.com/selfpromise/backend/internal/ledger"
	"github.com/selfpromise/backend/internal/registry"
)

// HandleSubmitVerdict records a verdict pushed by an external evaluator
// process. Identity is verified by the ledger before anything is stored.
func HandleSubmitVerdict(led *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PromiseID   string `json:"promise_id"`
			EvaluatorID string `json:"evaluator_id"`
			Fulfilled   bool   `json:"fulfilled"`
			Confidence  int    `json:"confidence"`
			Reasoning   string `json:"reasoning"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if err := led.SubmitVerdict(r.Context(), req.PromiseID, req.EvaluatorID, req.Fulfilled, req.Confidence, req.Reasoning); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"promise_id": req.PromiseID,
			"recorded":   true,
		})
	}
}

// HandleGetVerdict returns the recorded verdict for a promise.
func HandleGetVerdict(led *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		v, err := led.GetVerdict(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// HandleEvaluate runs the in-process evaluator over freshly fetched evidence
// and records the result. This is the single-binary deployment path, where
// the evaluator shares the process and submits under the attested identity.
func HandleEvaluate(reg *registry.Registry, led *ledger.Ledger, evals *evaluator.Registry, source evidence.Source, defaultEvaluator, evaluatorID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req struct {
			Evaluator string `json:"evaluator"`
		}
		// Body is optional; an empty body selects the default evaluator.
		_ = json.NewDecoder(r.Body).Decode(&req)
		name := req.Evaluator
		if name == "" {
			name = defaultEvaluator
		}

		p, err := reg.GetDetails(id)
		if err != nil {
			writeError(w, err)
			return
		}

		eval, err := evals.Get(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		bundle, err := source.Fetch(r.Context(), p.Owner, p.Start, p.End)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "EVIDENCE_UNAVAILABLE"})
			return
		}

		result, err := eval.Evaluate(r.Context(), evaluator.Params{
			PromiseID:   p.ID,
			PromiseType: p.PromiseType,
			Start:       p.Start,
			End:         p.End,
			Values:      p.Params,
		}, bundle)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "EVALUATION_FAILED"})
			return
		}

		if err := led.SubmitVerdict(r.Context(), p.ID, evaluatorID, result.Fulfilled, result.Confidence, result.Reasoning); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"promise_id": p.ID,
			"evaluator":  name,
			"fulfilled":  result.Fulfilled,
			"confidence": result.Confidence,
			"reasoning":  result.Reasoning,
		})
	}
}

// HandleAuditRoot exposes the verdict audit tree root so external parties
// can anchor it.
func HandleAuditRoot(led *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"audit_root": led.AuditRoot()})
	}
}
