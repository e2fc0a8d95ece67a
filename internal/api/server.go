// Package api assembles the REST surface over the promise core.
package api

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/selfpromise/backend/internal/catalog"
	"github.com/selfpromise/backend/internal/coordinator"
	"github.com/selfpromise/backend/internal/escrow"
	"github.com/selfpromise/backend/internal/evaluator"
	"github.com/selfpromise/backend/internal/evidence"
	"github.com/selfpromise/backend/internal/handlers"
	"github.com/selfpromise/backend/internal/ledger"
	"github.com/selfpromise/backend/internal/registry"
	"github.com/selfpromise/backend/internal/stream"
	"github.com/selfpromise/backend/internal/treasury"
)

// Server wires the handlers onto a router and serves them.
type Server struct {
	catalog     *catalog.Catalog
	adminToken  catalog.AdminToken
	registry    *registry.Registry
	escrow      *escrow.Escrow
	ledger      *ledger.Ledger
	coordinator *coordinator.Coordinator
	bank        *treasury.Bank
	evaluators  *evaluator.Registry
	evidence    evidence.Source
	streamer    *stream.Streamer

	defaultEvaluator string
	evaluatorID      string
}

// Deps carries everything the server needs, wired once in main.
type Deps struct {
	Catalog     *catalog.Catalog
	AdminToken  catalog.AdminToken
	Registry    *registry.Registry
	Escrow      *escrow.Escrow
	Ledger      *ledger.Ledger
	Coordinator *coordinator.Coordinator
	Bank        *treasury.Bank
	Evaluators  *evaluator.Registry
	Evidence    evidence.Source
	Streamer    *stream.Streamer

	DefaultEvaluator string
	EvaluatorID      string
}

// NewServer creates the API server.
func NewServer(d Deps) *Server {
	return &Server{
		catalog:          d.Catalog,
		adminToken:       d.AdminToken,
		registry:         d.Registry,
		escrow:           d.Escrow,
		ledger:           d.Ledger,
		coordinator:      d.Coordinator,
		bank:             d.Bank,
		evaluators:       d.Evaluators,
		evidence:         d.Evidence,
		streamer:         d.Streamer,
		defaultEvaluator: d.DefaultEvaluator,
		evaluatorID:      d.EvaluatorID,
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// CORS Middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if req.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	// Templates
	r.HandleFunc("/api/templates", handlers.HandleCreateTemplate(s.catalog, s.adminToken)).Methods("POST")
	r.HandleFunc("/api/templates", handlers.HandleListTemplates(s.catalog)).Methods("GET")
	r.HandleFunc("/api/templates/{id}", handlers.HandleGetTemplate(s.catalog)).Methods("GET")
	r.HandleFunc("/api/templates/{id}/deactivate", handlers.HandleDeactivateTemplate(s.catalog, s.adminToken)).Methods("POST")

	// Promises
	r.HandleFunc("/api/promises", handlers.HandleCreatePromise(s.registry)).Methods("POST")
	r.HandleFunc("/api/promises/{id}", handlers.HandleGetPromise(s.registry)).Methods("GET")
	r.HandleFunc("/api/promises/{id}/status", handlers.HandleGetStatus(s.registry, s.escrow, s.ledger)).Methods("GET")
	r.HandleFunc("/api/promises/{id}/evaluate", handlers.HandleEvaluate(s.registry, s.ledger, s.evaluators, s.evidence, s.defaultEvaluator, s.evaluatorID)).Methods("POST")
	r.HandleFunc("/api/promises/{id}/verdict", handlers.HandleGetVerdict(s.ledger)).Methods("GET")
	r.HandleFunc("/api/promises/{id}/resolve", handlers.HandleResolve(s.coordinator)).Methods("POST")

	// Deposits
	r.HandleFunc("/api/deposits", handlers.HandleDeposit(s.escrow, s.registry)).Methods("POST")
	r.HandleFunc("/api/deposits/{principal}", handlers.HandleGetDeposit(s.escrow)).Methods("GET")

	// Verdicts pushed by an external attested evaluator
	r.HandleFunc("/api/verdicts", handlers.HandleSubmitVerdict(s.ledger)).Methods("POST")
	r.HandleFunc("/api/audit/root", handlers.HandleAuditRoot(s.ledger)).Methods("GET")

	// Operator surface
	r.HandleFunc("/api/quarantine", handlers.HandleQuarantineList(s.coordinator)).Methods("GET")
	r.HandleFunc("/api/quarantine/{id}", handlers.HandleQuarantineClear(s.coordinator)).Methods("DELETE")

	// Treasury reads for dashboards
	r.HandleFunc("/api/treasury/{account}", s.handleBalance).Methods("GET")

	// Live event stream
	if s.streamer != nil {
		r.HandleFunc("/api/events/stream", s.streamer.HandleWebSocket)
	}

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	return r
}

// Start serves the router. Blocks until the listener fails.
func (s *Server) Start(port string) error {
	addr := fmt.Sprintf(":%s", port)
	log.Printf("[API] gateway listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"account":%q,"balance":%d}`+"\n", account, s.bank.Balance(account))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	stats := "{}"
	if s.streamer != nil {
		stats = fmt.Sprintf(`{"connected_clients":%v}`, s.streamer.Statistics()["connected_clients"])
	}
	fmt.Fprintf(w, `{"status":"ok","stream":%s}`+"\n", stats)
}
