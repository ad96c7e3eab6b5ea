// Package config loads and validates indexer configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/extract"
	"github.com/JakeFAU/degree-indexer/internal/index/elastic"
	"github.com/JakeFAU/degree-indexer/internal/index/postgres"
	"github.com/JakeFAU/degree-indexer/internal/policy/ratelimit"
	"github.com/JakeFAU/degree-indexer/internal/storage/gcs"
	"github.com/JakeFAU/degree-indexer/internal/storage/local"
	"github.com/JakeFAU/degree-indexer/internal/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. INDEXER_SCRAPE_LISTING_URL.
const EnvPrefix = "INDEXER"

// Index and artifact backend names.
const (
	BackendNone          = "none"
	BackendMemory        = "memory"
	BackendLocal         = "local"
	BackendGCS           = "gcs"
	BackendElasticsearch = "elasticsearch"
	BackendPostgres      = "postgres"
	BackendPubSub        = "pubsub"
)

const redacted = "********"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server" yaml:"server"`
	Auth      AuthConfig       `mapstructure:"auth" yaml:"auth"`
	Logging   LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Scrape    ScrapeConfig     `mapstructure:"scrape" yaml:"scrape"`
	HTTP      HTTPConfig       `mapstructure:"http" yaml:"http"`
	Extract   ExtractConfig    `mapstructure:"extract" yaml:"extract"`
	Index     IndexConfig      `mapstructure:"index" yaml:"index"`
	Artifacts ArtifactsConfig  `mapstructure:"artifacts" yaml:"artifacts"`
	Notify    NotifyConfig     `mapstructure:"notify" yaml:"notify"`
	RateLimit RateLimitConfig  `mapstructure:"ratelimit" yaml:"ratelimit"`
	Tracing   telemetry.Config `mapstructure:"tracing" yaml:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port" yaml:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development" yaml:"development"`
	Level       string `mapstructure:"level" yaml:"level"`
}

// ScrapeConfig names the listing page and how to read it.
type ScrapeConfig struct {
	ListingURL            string   `mapstructure:"listing_url" yaml:"listing_url"`
	BaseURL               string   `mapstructure:"base_url" yaml:"base_url"`
	ListingSelector       string   `mapstructure:"listing_selector" yaml:"listing_selector"`
	SecondarySelector     string   `mapstructure:"secondary_selector" yaml:"secondary_selector"`
	ListingKeywords       []string `mapstructure:"listing_keywords" yaml:"listing_keywords"`
	MaxConcurrentRequests int      `mapstructure:"max_concurrent_requests" yaml:"max_concurrent_requests"`
	UserAgent             string   `mapstructure:"user_agent" yaml:"user_agent"`
}

// HTTPConfig configures the shared fetch transport.
type HTTPConfig struct {
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	TotalTimeout    time.Duration `mapstructure:"total_timeout" yaml:"total_timeout"`
	MaxConns        int           `mapstructure:"max_conns" yaml:"max_conns"`
	MaxConnsPerHost int           `mapstructure:"max_conns_per_host" yaml:"max_conns_per_host"`
}

// ExtractConfig overrides the stock extraction profile. Zero values keep the
// defaults.
type ExtractConfig struct {
	MinTitleLength       int      `mapstructure:"min_title_length" yaml:"min_title_length"`
	MinDescriptionLength int      `mapstructure:"min_description_length" yaml:"min_description_length"`
	MaxRequirements      int      `mapstructure:"max_requirements" yaml:"max_requirements"`
	MaxRelated           int      `mapstructure:"max_related" yaml:"max_related"`
	MaxSectionLength     int      `mapstructure:"max_section_length" yaml:"max_section_length"`
	DescriptionKeywords  []string `mapstructure:"description_keywords" yaml:"description_keywords,omitempty"`
	SnapshotKeywords     []string `mapstructure:"snapshot_keywords" yaml:"snapshot_keywords,omitempty"`
	BenefitKeywords      []string `mapstructure:"benefit_keywords" yaml:"benefit_keywords,omitempty"`
	CardSelector         string   `mapstructure:"card_selector" yaml:"card_selector,omitempty"`
}

// Apply overlays the non-zero overrides onto p.
func (e ExtractConfig) Apply(p extract.Profile) extract.Profile {
	if e.MinTitleLength > 0 {
		p.MinTitleLength = e.MinTitleLength
	}
	if e.MinDescriptionLength > 0 {
		p.MinDescriptionLength = e.MinDescriptionLength
	}
	if e.MaxRequirements > 0 {
		p.MaxRequirements = e.MaxRequirements
	}
	if e.MaxRelated > 0 {
		p.MaxRelated = e.MaxRelated
	}
	if e.MaxSectionLength > 0 {
		p.MaxSectionLength = e.MaxSectionLength
	}
	if len(e.DescriptionKeywords) > 0 {
		p.DescriptionKeywords = e.DescriptionKeywords
	}
	if len(e.SnapshotKeywords) > 0 {
		p.SnapshotKeywords = e.SnapshotKeywords
	}
	if len(e.BenefitKeywords) > 0 {
		p.BenefitKeywords = e.BenefitKeywords
	}
	if e.CardSelector != "" {
		p.CardSelector = e.CardSelector
	}
	return p
}

// BucketConfig locates documents in a GCS bucket.
type BucketConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// IndexConfig selects the retrieval index backend.
type IndexConfig struct {
	Backend       string          `mapstructure:"backend" yaml:"backend"`
	Local         local.Config    `mapstructure:"local" yaml:"local"`
	GCS           BucketConfig    `mapstructure:"gcs" yaml:"gcs"`
	Elasticsearch elastic.Config  `mapstructure:"elasticsearch" yaml:"elasticsearch"`
	Postgres      postgres.Config `mapstructure:"postgres" yaml:"postgres"`
}

// ArtifactsConfig controls persistence of raw pages and aggregates.
type ArtifactsConfig struct {
	Enabled bool         `mapstructure:"enabled" yaml:"enabled"`
	Backend string       `mapstructure:"backend" yaml:"backend"`
	Prefix  string       `mapstructure:"prefix" yaml:"prefix"`
	Local   local.Config `mapstructure:"local" yaml:"local"`
	GCS     gcs.Config   `mapstructure:"gcs" yaml:"gcs"`
}

// NotifyConfig controls the run-finished notification.
type NotifyConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	Topic     string `mapstructure:"topic" yaml:"topic"`
}

// RateLimitConfig holds per-route client limits.
type RateLimitConfig struct {
	Chat              ratelimit.Config `mapstructure:"chat" yaml:"chat"`
	Scrape            ratelimit.Config `mapstructure:"scrape" yaml:"scrape"`
	TrustForwardedFor bool             `mapstructure:"trust_forwarded_for" yaml:"trust_forwarded_for"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 10*time.Minute)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")

	v.SetDefault("scrape.listing_url", "")
	v.SetDefault("scrape.base_url", "")
	v.SetDefault("scrape.listing_selector", "")
	v.SetDefault("scrape.secondary_selector", "")
	v.SetDefault("scrape.listing_keywords", []string{})
	v.SetDefault("scrape.max_concurrent_requests", 20)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; scraper)")

	v.SetDefault("http.connect_timeout", 10*time.Second)
	v.SetDefault("http.total_timeout", 30*time.Second)
	v.SetDefault("http.max_conns", 100)
	v.SetDefault("http.max_conns_per_host", 30)

	v.SetDefault("extract.min_title_length", 0)
	v.SetDefault("extract.min_description_length", 0)
	v.SetDefault("extract.max_requirements", 0)
	v.SetDefault("extract.max_related", 0)
	v.SetDefault("extract.max_section_length", 0)
	v.SetDefault("extract.card_selector", "")

	v.SetDefault("index.backend", BackendNone)
	v.SetDefault("index.local.base_dir", "")
	v.SetDefault("index.gcs.bucket", "")
	v.SetDefault("index.gcs.prefix", "index")
	v.SetDefault("index.elasticsearch.addresses", []string{})
	v.SetDefault("index.elasticsearch.username", "")
	v.SetDefault("index.elasticsearch.password", "")
	v.SetDefault("index.elasticsearch.api_key", "")
	v.SetDefault("index.elasticsearch.index", elastic.DefaultIndex)
	v.SetDefault("index.postgres.dsn", "")
	v.SetDefault("index.postgres.table", postgres.DefaultTable)

	v.SetDefault("artifacts.enabled", false)
	v.SetDefault("artifacts.backend", BackendLocal)
	v.SetDefault("artifacts.prefix", "")
	v.SetDefault("artifacts.local.base_dir", "debug")
	v.SetDefault("artifacts.gcs.bucket", "")

	v.SetDefault("notify.backend", BackendNone)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")

	v.SetDefault("ratelimit.chat.requests", 20)
	v.SetDefault("ratelimit.chat.window", time.Minute)
	v.SetDefault("ratelimit.scrape.requests", 5)
	v.SetDefault("ratelimit.scrape.window", 5*time.Minute)
	v.SetDefault("ratelimit.trust_forwarded_for", true)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "degree-indexer")
	v.SetDefault("tracing.exporter", telemetry.ExporterNone)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits. Failures are
// reported as *crawler.ConfigError.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return &crawler.ConfigError{Key: "server.port", Reason: "must be > 0"}
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return &crawler.ConfigError{Key: "auth.api_key", Reason: "must be set when auth is enabled"}
	}
	if err := c.Scrape.validate(); err != nil {
		return err
	}
	if c.HTTP.ConnectTimeout <= 0 {
		return &crawler.ConfigError{Key: "http.connect_timeout", Reason: "must be > 0"}
	}
	if c.HTTP.TotalTimeout <= 0 {
		return &crawler.ConfigError{Key: "http.total_timeout", Reason: "must be > 0"}
	}
	if err := c.Index.validate(); err != nil {
		return err
	}
	if err := c.Artifacts.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	switch c.Tracing.Exporter {
	case "", telemetry.ExporterNone, telemetry.ExporterStdout:
	default:
		return &crawler.ConfigError{Key: "tracing.exporter", Reason: fmt.Sprintf("unknown exporter %q", c.Tracing.Exporter)}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return &crawler.ConfigError{Key: "tracing.sample_ratio", Reason: "must be between 0 and 1"}
	}
	return nil
}

func (s ScrapeConfig) validate() error {
	if strings.TrimSpace(s.ListingURL) == "" {
		return &crawler.ConfigError{Key: "scrape.listing_url", Reason: "must be set"}
	}
	if u, err := url.Parse(s.ListingURL); err != nil || u.Scheme == "" || u.Host == "" {
		return &crawler.ConfigError{Key: "scrape.listing_url", Reason: "must be an absolute URL"}
	}
	if s.BaseURL != "" {
		if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return &crawler.ConfigError{Key: "scrape.base_url", Reason: "must be an absolute URL"}
		}
	}
	if s.MaxConcurrentRequests <= 0 {
		return &crawler.ConfigError{Key: "scrape.max_concurrent_requests", Reason: "must be > 0"}
	}
	return nil
}

func (i IndexConfig) validate() error {
	switch i.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if i.Local.BaseDir == "" {
			return &crawler.ConfigError{Key: "index.local.base_dir", Reason: "required for the local backend"}
		}
	case BackendGCS:
		if i.GCS.Bucket == "" {
			return &crawler.ConfigError{Key: "index.gcs.bucket", Reason: "required for the gcs backend"}
		}
	case BackendElasticsearch:
		if len(i.Elasticsearch.Addresses) == 0 {
			return &crawler.ConfigError{Key: "index.elasticsearch.addresses", Reason: "required for the elasticsearch backend"}
		}
	case BackendPostgres:
		if i.Postgres.DSN == "" {
			return &crawler.ConfigError{Key: "index.postgres.dsn", Reason: "required for the postgres backend"}
		}
	default:
		return &crawler.ConfigError{Key: "index.backend", Reason: fmt.Sprintf("unknown backend %q", i.Backend)}
	}
	return nil
}

func (a ArtifactsConfig) validate() error {
	if !a.Enabled {
		return nil
	}
	switch a.Backend {
	case BackendMemory:
	case BackendLocal:
		if a.Local.BaseDir == "" {
			return &crawler.ConfigError{Key: "artifacts.local.base_dir", Reason: "required for the local backend"}
		}
	case BackendGCS:
		if a.GCS.Bucket == "" {
			return &crawler.ConfigError{Key: "artifacts.gcs.bucket", Reason: "required for the gcs backend"}
		}
	default:
		return &crawler.ConfigError{Key: "artifacts.backend", Reason: fmt.Sprintf("unknown backend %q", a.Backend)}
	}
	return nil
}

func (n NotifyConfig) validate() error {
	switch n.Backend {
	case BackendNone:
		return nil
	case BackendMemory:
	case BackendPubSub:
		if n.ProjectID == "" {
			return &crawler.ConfigError{Key: "notify.project_id", Reason: "required for the pubsub backend"}
		}
	default:
		return &crawler.ConfigError{Key: "notify.backend", Reason: fmt.Sprintf("unknown backend %q", n.Backend)}
	}
	if n.Topic == "" {
		return &crawler.ConfigError{Key: "notify.topic", Reason: "must be set when notifications are enabled"}
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	out := c
	if out.Auth.APIKey != "" {
		out.Auth.APIKey = redacted
	}
	if out.Index.Elasticsearch.Password != "" {
		out.Index.Elasticsearch.Password = redacted
	}
	if out.Index.Elasticsearch.APIKey != "" {
		out.Index.Elasticsearch.APIKey = redacted
	}
	if out.Index.Postgres.DSN != "" {
		out.Index.Postgres.DSN = redactDSN(out.Index.Postgres.DSN)
	}
	out.Index.Elasticsearch.Addresses = append([]string(nil), c.Index.Elasticsearch.Addresses...)
	return out
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return redacted
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), redacted)
	}
	return u.String()
}
