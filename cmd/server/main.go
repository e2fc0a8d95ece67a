package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // Postgres driver

	"github.com/selfpromise/backend/internal/api"
	"github.com/selfpromise/backend/internal/catalog"
	"github.com/selfpromise/backend/internal/config"
	"github.com/selfpromise/backend/internal/coordinator"
	"github.com/selfpromise/backend/internal/escrow"
	"github.com/selfpromise/backend/internal/evaluator"
	"github.com/selfpromise/backend/internal/events"
	"github.com/selfpromise/backend/internal/evidence"
	"github.com/selfpromise/backend/internal/identity"
	"github.com/selfpromise/backend/internal/infra"
	"github.com/selfpromise/backend/internal/ledger"
	"github.com/selfpromise/backend/internal/registry"
	"github.com/selfpromise/backend/internal/stream"
	"github.com/selfpromise/backend/internal/treasury"
)

func main() {
	log.Println("[Server] starting promise escrow backend...")

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := loadConfig()

	// Event bus: in-process always, mirrored to Redis when configured.
	bus := events.NewBus()
	var emitter events.Emitter = bus
	if cfg.Redis.Addr != "" {
		adapter, err := infra.NewGoRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("[Server] Redis unavailable, local-only events: %v", err)
		} else {
			rb := events.NewRedisBus(bus, adapter, "")
			if err := rb.Relay(
				events.TypePromiseCreated,
				events.TypePromiseEvaluated,
				events.TypePromiseResolved,
				events.TypeEscrowDeposited,
				events.TypeEscrowReleased,
			); err != nil {
				log.Printf("[Server] Redis relay setup failed: %v", err)
			}
			emitter = rb
		}
	}

	// Treasury: in-memory bank, with a Postgres transfer journal when a DSN
	// is configured.
	bank := treasury.NewBank()
	if cfg.Treasury.PostgresDSN != "" {
		journal, err := treasury.NewJournal(cfg.Treasury.PostgresDSN)
		if err != nil {
			log.Printf("[Server] journal disabled, transfers unlogged: %v", err)
		} else {
			bank.WithJournal(journal)
			defer journal.Close()
		}
	}

	// Core chain: catalog -> registry -> escrow -> ledger -> coordinator.
	cat, adminToken := catalog.NewCatalog()
	cat.SeedBuiltins(adminToken)

	reg := registry.NewRegistry(cat, emitter)

	vault := treasury.NewEscrowVault(bank, cfg.Escrow.VaultAccount)
	esc := escrow.New(vault, emitter, escrow.NewMetrics())

	verifier := buildVerifier(cfg)
	led := ledger.New(reg, reg.EvaluatorGate(), verifier, emitter)

	coord := coordinator.New(reg, reg.ResolverGate(), led, esc.Resolver(), emitter)

	// In-process evaluators and evidence source for single-binary mode.
	evals := evaluator.NewRegistry()
	evals.Register(evaluator.NewRuleBased())
	if cfg.Evaluator.LLM.Endpoint != "" {
		evals.Register(evaluator.NewLLMBased(cfg.Evaluator.LLM.Endpoint, cfg.Evaluator.LLM.APIKey, cfg.Evaluator.LLM.Model))
	}

	streamer := stream.NewStreamer(bus)
	go streamer.Run()

	// With SPIFFE attestation the in-process evaluator submits under its
	// workload SPIFFE ID; otherwise under the statically attested identity.
	evaluatorID := cfg.Evaluator.AttestedIdentity
	if cfg.Evaluator.SPIFFESocket != "" && cfg.Evaluator.TrustDomain != "" {
		evaluatorID = identity.EvaluatorSPIFFEID(cfg.Evaluator.TrustDomain, cfg.Evaluator.Default)
	}

	server := api.NewServer(api.Deps{
		Catalog:          cat,
		AdminToken:       adminToken,
		Registry:         reg,
		Escrow:           esc,
		Ledger:           led,
		Coordinator:      coord,
		Bank:             bank,
		Evaluators:       evals,
		Evidence:         buildEvidenceSource(cfg),
		Streamer:         streamer,
		DefaultEvaluator: cfg.Evaluator.Default,
		EvaluatorID:      evaluatorID,
	})

	if err := server.Start(cfg.Server.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func loadConfig() *config.Config {
	path := os.Getenv("SELFPROMISE_CONFIG")
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Printf("[Server] no config file at %s, using defaults", path)
		return config.Default()
	}
	return cfg
}

// buildVerifier picks SPIFFE attestation when a workload API socket is
// configured, otherwise the statically attested identity.
func buildVerifier(cfg *config.Config) identity.Verifier {
	if cfg.Evaluator.SPIFFESocket != "" {
		v, err := identity.NewSPIFFEVerifier(cfg.Evaluator.SPIFFESocket)
		if err != nil {
			log.Printf("[Server] SPIFFE unavailable, falling back to static identity: %v", err)
		} else {
			return v
		}
	}
	return identity.NewStaticVerifier(cfg.Evaluator.AttestedIdentity)
}

func buildEvidenceSource(cfg *config.Config) evidence.Source {
	switch cfg.Evidence.Source {
	case "terra":
		return evidence.NewTerraClient(cfg.Evidence.BaseURL, cfg.Evidence.APIKey, cfg.Evidence.DevID)
	default:
		return &evidence.MockSource{}
	}
}
