package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/selfpromise/backend/internal/escrow"
	"github.com/selfpromise/backend/internal/ledger"
	"github.com/selfpromise/backend/internal/registry"
)

// HandleCreatePromise instantiates a promise from a template. Start and end
// are RFC3339; the window is half-open [start, end).
func HandleCreatePromise(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Owner             string            `json:"owner"`
			TemplateID        uint64            `json:"template_id"`
			Overrides         map[string]string `json:"overrides"`
			Start             string            `json:"start"`
			End               string            `json:"end"`
			FallbackRecipient string            `json:"fallback_recipient"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Owner == "" {
			http.Error(w, "owner is required", http.StatusBadRequest)
			return
		}

		start, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			http.Error(w, "start must be RFC3339", http.StatusBadRequest)
			return
		}
		end, err := time.Parse(time.RFC3339, req.End)
		if err != nil {
			http.Error(w, "end must be RFC3339", http.StatusBadRequest)
			return
		}

		id, err := reg.Create(req.Owner, req.TemplateID, req.Overrides, start, end, req.FallbackRecipient)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"promise_id": id})
	}
}

// HandleGetPromise returns a promise with its lifecycle state spelled out.
func HandleGetPromise(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		p, err := reg.GetDetails(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, promiseJSON(p))
	}
}

// HandleGetStatus returns the combined view of a promise: its details plus
// the owner's bound deposit and the recorded verdict, each null until they
// exist. One request answers "where does my promise stand".
func HandleGetStatus(reg *registry.Registry, esc *escrow.Escrow, led *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		p, err := reg.GetDetails(id)
		if err != nil {
			writeError(w, err)
			return
		}

		body := promiseJSON(p)
		body["deposit"] = nil
		body["verdict"] = nil

		if d, err := esc.GetDeposit(p.Owner); err == nil && d.PromiseID == p.ID {
			body["deposit"] = d
		}
		if v, err := led.GetVerdict(p.ID); err == nil {
			body["verdict"] = v
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func promiseJSON(p registry.Promise) map[string]interface{} {
	return map[string]interface{}{
		"id":                 p.ID,
		"owner":              p.Owner,
		"template_id":        p.TemplateID,
		"promise_type":       p.PromiseType,
		"params":             p.Params,
		"start":              p.Start.Format(time.RFC3339),
		"end":                p.End.Format(time.RFC3339),
		"fallback_recipient": p.FallbackRecipient,
		"state":              p.State.String(),
		"created_at":         p.CreatedAt.Format(time.RFC3339),
	}
}
