package config

import (
	"fmt"
	"os"
	"time"

	"encyclopedia-cms/models"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Env  string `env:"APP_ENV" envDefault:"development"`
	Port string `env:"PORT" envDefault:"8080"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"encyclopedia"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION" envDefault:"24h"`

	SearchIndexPath   string        `env:"SEARCH_INDEX_PATH" envDefault:"search.db"`
	SearchTimeout     time.Duration `env:"SEARCH_TIMEOUT" envDefault:"2s"`
	ReindexMaxTries   uint          `env:"REINDEX_MAX_TRIES" envDefault:"4"`
	ReindexBuffer     int           `env:"REINDEX_BUFFER" envDefault:"256"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileRate     float64       `env:"RECONCILE_RATE" envDefault:"20"`

	PolicyFile string `env:"POLICY_FILE"`

	Quorum           int     `env:"CONSENSUS_QUORUM"`
	ApproveThreshold float64 `env:"CONSENSUS_APPROVE_THRESHOLD"`
	RejectThreshold  float64 `env:"CONSENSUS_REJECT_THRESHOLD"`
	MaxReviewers     int     `env:"CONSENSUS_MAX_REVIEWERS"`
	ScoreMode        string  `env:"CONSENSUS_SCORE_MODE"`

	Consensus  models.ConsensusPolicy  `env:"-"`
	Moderation models.ModerationPolicy `env:"-"`
}

// policyFile is the on-disk layout of POLICY_FILE.
type policyFile struct {
	Consensus  models.ConsensusPolicy  `toml:"consensus"`
	Moderation models.ModerationPolicy `toml:"moderation"`
}

// Load reads .env when present, then the environment, then the optional
// policy file. Later sources override earlier ones.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Consensus = models.DefaultConsensusPolicy()
	cfg.Moderation = models.DefaultModerationPolicy()
	cfg.applyPolicyEnv()

	if cfg.PolicyFile != "" {
		data, err := os.ReadFile(cfg.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		if err := cfg.applyPolicyFile(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.Consensus.Validate(); err != nil {
		return nil, fmt.Errorf("consensus policy: %w", err)
	}

	SetJWT(cfg.JWTSecret, cfg.JWTExpiration)
	return &cfg, nil
}

func (c *Config) applyPolicyEnv() {
	if c.Quorum > 0 {
		c.Consensus.Quorum = c.Quorum
	}
	if c.ApproveThreshold > 0 {
		c.Consensus.ApproveThreshold = c.ApproveThreshold
	}
	if c.RejectThreshold > 0 {
		c.Consensus.RejectThreshold = c.RejectThreshold
	}
	if c.MaxReviewers > 0 {
		c.Consensus.MaxReviewers = c.MaxReviewers
	}
	if c.ScoreMode != "" {
		c.Consensus.ScoreMode = models.ScoreMode(c.ScoreMode)
	}
}

func (c *Config) applyPolicyFile(data []byte) error {
	file := policyFile{
		Consensus:  c.Consensus,
		Moderation: c.Moderation,
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}
	c.Consensus = file.Consensus
	c.Moderation = file.Moderation
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
