// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/afd-harvester/internal/batch"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Output  OutputConfig  `mapstructure:"output"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
	Years   YearsConfig   `mapstructure:"years"`
}

// APIConfig identifies the client to the remote wiki API.
type APIConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	UserAgent      string  `mapstructure:"user_agent"`
	Redirects      int     `mapstructure:"redirects"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes"`
	MaxRPS         float64 `mapstructure:"max_rps"`
	Burst          int     `mapstructure:"burst"`
}

// CooldownTier pauses PauseSeconds after every Every processed chunks.
type CooldownTier struct {
	Every        int `mapstructure:"every"`
	PauseSeconds int `mapstructure:"pause_seconds"`
}

// BatchConfig governs chunking, the worker pool and cooldowns.
type BatchConfig struct {
	Chunks         int            `mapstructure:"chunks"`
	RevisionChunks int            `mapstructure:"revision_chunks"`
	Workers        int            `mapstructure:"workers"`
	Cooldowns      []CooldownTier `mapstructure:"cooldowns"`
}

// OutputConfig names the output root and its sibling directories.
type OutputConfig struct {
	Root         string `mapstructure:"root"`
	CasesDir     string `mapstructure:"cases_dir"`
	MetaDir      string `mapstructure:"meta_dir"`
	DocumentsDir string `mapstructure:"documents_dir"`
	RevisionsDir string `mapstructure:"revisions_dir"`
}

// StorageConfig selects where discussion documents are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres mirror of meta rows.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// MetricsConfig enables the ops HTTP endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// YearsConfig bounds monthly case extraction.
type YearsConfig struct {
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
}

// Storage backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.endpoint", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("api.user_agent", "afd-harvester/0.1 (https://github.com/JakeFAU/afd-harvester)")
	v.SetDefault("api.redirects", 1)
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("api.max_body_bytes", 0)
	v.SetDefault("api.max_rps", 0)
	v.SetDefault("api.burst", 1)
	v.SetDefault("batch.chunks", 1000)
	v.SetDefault("batch.revision_chunks", 100)
	v.SetDefault("batch.workers", 10)
	v.SetDefault("batch.cooldowns", []map[string]any{{"every": 50, "pause_seconds": 900}})
	v.SetDefault("output.root", "data")
	v.SetDefault("output.cases_dir", "deletion_cases")
	v.SetDefault("output.meta_dir", "case_meta_data")
	v.SetDefault("output.documents_dir", "deletion_discussions")
	v.SetDefault("output.revisions_dir", "revisions")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("db.table", "case_meta")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("years.start", 2005)
	v.SetDefault("years.end", 2025)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.API.Endpoint) == "" {
		return fmt.Errorf("api.endpoint is required")
	}
	if strings.TrimSpace(c.API.UserAgent) == "" {
		return fmt.Errorf("api.user_agent is required")
	}
	if c.API.Redirects < 0 {
		return fmt.Errorf("api.redirects must be >= 0")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.API.MaxRPS < 0 {
		return fmt.Errorf("api.max_rps must be >= 0")
	}
	if c.Batch.Chunks <= 0 {
		return fmt.Errorf("batch.chunks must be > 0")
	}
	if c.Batch.RevisionChunks <= 0 {
		return fmt.Errorf("batch.revision_chunks must be > 0")
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("batch.workers must be > 0")
	}
	for i, tier := range c.Batch.Cooldowns {
		if tier.Every <= 0 || tier.PauseSeconds < 0 {
			return fmt.Errorf("batch.cooldowns[%d] needs every > 0 and pause_seconds >= 0", i)
		}
	}
	if strings.TrimSpace(c.Output.Root) == "" {
		return fmt.Errorf("output.root is required")
	}
	switch c.Storage.Backend {
	case BackendLocal, BackendMemory:
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of local, gcs, memory", c.Storage.Backend)
	}
	if c.Years.Start <= 0 || c.Years.End < c.Years.Start {
		return fmt.Errorf("years.start and years.end must form a range")
	}
	return nil
}

// Timeout converts the API timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// CooldownTiers converts the configured tiers for batch.NewEveryN.
func (c Config) CooldownTiers() []batch.Tier {
	out := make([]batch.Tier, len(c.Batch.Cooldowns))
	for i, t := range c.Batch.Cooldowns {
		out[i] = batch.Tier{Every: t.Every, Pause: time.Duration(t.PauseSeconds) * time.Second}
	}
	return out
}

// Dir joins an output sibling directory onto the output root.
func (c Config) Dir(name string) string {
	return filepath.Join(c.Output.Root, name)
}

// CasesDir is where monthly case tables go.
func (c Config) CasesDir() string { return c.Dir(c.Output.CasesDir) }

// MetaDir holds chunk tables and error logs.
func (c Config) MetaDir() string { return c.Dir(c.Output.MetaDir) }

// DocumentsDir holds discussion documents for the local backend.
func (c Config) DocumentsDir() string { return c.Dir(c.Output.DocumentsDir) }

// RevisionsDir is reserved for revision listings.
func (c Config) RevisionsDir() string { return c.Dir(c.Output.RevisionsDir) }

// OutputDirs lists every directory that must exist before a run.
func (c Config) OutputDirs() []string {
	return []string{c.Output.Root, c.CasesDir(), c.MetaDir(), c.DocumentsDir(), c.RevisionsDir()}
}
