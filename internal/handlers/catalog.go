package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/selfpromise/backend/internal/catalog"
)

// HandleCreateTemplate registers a new promise template. Admin surface: the
// handler closes over the catalog's admin token, so only deployments that
// mount this route can create templates.
func HandleCreateTemplate(cat *catalog.Catalog, tok catalog.AdminToken) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name          string            `json:"name"`
			PromiseType   string            `json:"promise_type"`
			DefaultParams map[string]string `json:"default_params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		id, err := cat.CreateTemplate(tok, req.Name, req.PromiseType, req.DefaultParams)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"template_id": id})
	}
}

// HandleDeactivateTemplate retires a template.
func HandleDeactivateTemplate(cat *catalog.Catalog, tok catalog.AdminToken) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			http.Error(w, "Invalid template id", http.StatusBadRequest)
			return
		}

		if err := cat.Deactivate(tok, id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"template_id": id, "active": false})
	}
}

// HandleListTemplates lists all templates, retired ones included.
func HandleListTemplates(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cat.List())
	}
}

// HandleGetTemplate returns one template by id.
func HandleGetTemplate(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			http.Error(w, "Invalid template id", http.StatusBadRequest)
			return
		}

		t, err := cat.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}
