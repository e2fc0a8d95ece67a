package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Evaluator EvaluatorConfig `yaml:"evaluator"`
	Escrow    EscrowConfig    `yaml:"escrow"`
	Treasury  TreasuryConfig  `yaml:"treasury"`
	Redis     RedisConfig     `yaml:"redis"`
	Evidence  EvidenceConfig  `yaml:"evidence"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type EvaluatorConfig struct {
	// Default evaluator for templates without an explicit one
	// (rule_based or llm_based).
	Default string `yaml:"default"`

	// AttestedIdentity is the only evaluator identity verdicts are accepted
	// from when SPIFFE attestation is not configured.
	AttestedIdentity string `yaml:"attested_identity"`

	// SPIFFESocket enables workload attestation of the evaluator when set.
	SPIFFESocket string `yaml:"spiffe_socket"`
	TrustDomain  string `yaml:"trust_domain"`

	LLM LLMConfig `yaml:"llm"`
}

type LLMConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

type EscrowConfig struct {
	// VaultAccount is the treasury account escrowed funds sit in between
	// deposit and resolution.
	VaultAccount string `yaml:"vault_account"`
}

type TreasuryConfig struct {
	// PostgresDSN enables the durable transfer journal when set.
	PostgresDSN string `yaml:"postgres_dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type EvidenceConfig struct {
	// Source picks the evidence provider: terra, mock or static.
	Source  string `yaml:"source"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	DevID   string `yaml:"dev_id"`
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Evaluator.Default == "" {
		c.Evaluator.Default = "rule_based"
	}
	if c.Evaluator.AttestedIdentity == "" {
		c.Evaluator.AttestedIdentity = "evaluator-local"
	}
	if c.Escrow.VaultAccount == "" {
		c.Escrow.VaultAccount = "escrow-vault"
	}
	if c.Evidence.Source == "" {
		c.Evidence.Source = "mock"
	}
}
