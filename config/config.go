package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the evidence service
type Config struct {
	General   GeneralConfig       `mapstructure:"general"`
	Server    ServerConfig        `mapstructure:"server"`
	Providers []ProviderConfig    `mapstructure:"providers"`
	Harvest   HarvestConfig       `mapstructure:"harvest"`
	Rerank    RerankConfig        `mapstructure:"rerank"`
	Topics    map[string][]string `mapstructure:"topics"`
	Pipeline  PipelineConfig      `mapstructure:"pipeline"`
	Storage   StorageConfig       `mapstructure:"storage"`
	Telemetry TelemetryConfig     `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json or console
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ProviderConfig configures one search provider. Providers are queried and
// merged in the order they are listed.
type ProviderConfig struct {
	ID                string        `mapstructure:"id"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerSecond float64       `mapstructure:"rps"`
	Burst             float64       `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Retries           int           `mapstructure:"retries"`
	Disabled          bool          `mapstructure:"disabled"`
}

// HarvestConfig contains page fetching settings
type HarvestConfig struct {
	UserAgent         string            `mapstructure:"user_agent"`
	FetchTimeout      time.Duration     `mapstructure:"fetch_timeout"`
	RobotsTimeout     time.Duration     `mapstructure:"robots_timeout"`
	RespectRobots     bool              `mapstructure:"respect_robots"`
	RobotsCacheTTL    time.Duration     `mapstructure:"robots_cache_ttl"`
	MinContentLength  int               `mapstructure:"min_content_length"`
	MaxChunkSize      int               `mapstructure:"max_chunk_size"`
	ChunkOverlap      *int              `mapstructure:"chunk_overlap"` // nil means 200
	MaxRedirects      int               `mapstructure:"max_redirects"`
	MaxBodyBytes      int64             `mapstructure:"max_body_bytes"`
	Concurrency       int               `mapstructure:"concurrency"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second"`
	Burst             float64           `mapstructure:"burst"`
	PerHostRPS        float64           `mapstructure:"per_host_rps"`
	Extractor         string            `mapstructure:"extractor"` // strip or readability
	CrawlPolicy       CrawlPolicyConfig `mapstructure:"crawl_policy"`
}

// RerankConfig tunes evidence scoring. Nil boosts take their defaults; an
// explicit zero turns the signal off.
type RerankConfig struct {
	AuthoritativeDomains []string           `mapstructure:"authoritative_domains"`
	AuthorityBoost       *float64           `mapstructure:"authority_boost"`
	RecencyBoost         *float64           `mapstructure:"recency_boost"`
	RecencyWindow        time.Duration      `mapstructure:"recency_window"`
	DomainBias           map[string]float64 `mapstructure:"domain_bias"`
	Thresholds           RerankThresholds   `mapstructure:"thresholds"`
}

// RerankThresholds are the lengths and chunk counts a piece of evidence must
// exceed to earn the content-quality boosts.
type RerankThresholds struct {
	ChunksFirst   int `mapstructure:"chunks_first"`
	ChunksSecond  int `mapstructure:"chunks_second"`
	TitleLength   int `mapstructure:"title_length"`
	SnippetLength int `mapstructure:"snippet_length"`
}

// Float returns a pointer to v, for optional config fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional config fields.
func Int(v int) *int { return &v }

// PipelineConfig controls the gather flow.
type PipelineConfig struct {
	MaxResults  int  `mapstructure:"max_results"`
	Enrich      bool `mapstructure:"enrich"`
	DirectFetch bool `mapstructure:"direct_fetch"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings. Redis is optional; an empty
// host keeps caches in memory.
type RedisConfig struct {
	Host      string        `mapstructure:"host"`
	Port      string        `mapstructure:"port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Timeout   time.Duration `mapstructure:"timeout"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// Enabled reports whether a Redis host was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// Addr joins host and port.
func (r RedisConfig) Addr() string {
	port := strings.TrimSpace(r.Port)
	if port == "" {
		port = "6379"
	}
	return strings.TrimSpace(r.Host) + ":" + port
}

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if r.DB < 0 {
		return fmt.Errorf("storage.redis.db cannot be negative")
	}
	return nil
}

var knownProviders = map[string]struct{}{"tavily": {}, "exa": {}, "brave": {}, "serper": {}}

// Normalize applies defaults for unset provider values.
func (p ProviderConfig) Normalize() ProviderConfig {
	p.ID = strings.ToLower(strings.TrimSpace(p.ID))
	p.APIKey = strings.TrimSpace(p.APIKey)
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if p.RequestsPerSecond <= 0 {
		p.RequestsPerSecond = 1
	}
	// every call takes one token, so the bucket must hold at least one
	p.Burst = burstFor(p.Burst, p.RequestsPerSecond)
	if p.Timeout <= 0 {
		p.Timeout = 15 * time.Second
	}
	if p.Retries < 0 {
		p.Retries = 0
	}
	return p
}

// Validate fails fast on provider misconfiguration.
func (p ProviderConfig) Validate() error {
	if _, ok := knownProviders[p.ID]; !ok {
		return fmt.Errorf("providers: unsupported provider %q", p.ID)
	}
	if p.Disabled {
		return nil
	}
	if p.APIKey == "" {
		return fmt.Errorf("providers.%s.api_key required", p.ID)
	}
	return nil
}

func burstFor(burst, rps float64) float64 {
	if burst <= 0 {
		burst = rps
	}
	return math.Max(burst, 1)
}

// Normalize applies harvest defaults.
func (h HarvestConfig) Normalize() HarvestConfig {
	if strings.TrimSpace(h.UserAgent) == "" {
		h.UserAgent = "newser-evidence/1.0 (+https://github.com/mohammad-safakhou/newser-evidence)"
	}
	if h.FetchTimeout <= 0 {
		h.FetchTimeout = 15 * time.Second
	}
	if h.RobotsTimeout <= 0 {
		h.RobotsTimeout = 5 * time.Second
	}
	if h.RobotsCacheTTL <= 0 {
		h.RobotsCacheTTL = time.Hour
	}
	if h.MinContentLength <= 0 {
		h.MinContentLength = 200
	}
	if h.MaxChunkSize <= 0 {
		h.MaxChunkSize = 1000
	}
	switch {
	case h.ChunkOverlap == nil:
		h.ChunkOverlap = Int(200)
	case *h.ChunkOverlap < 0:
		h.ChunkOverlap = Int(0)
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 5
	}
	if h.MaxBodyBytes <= 0 {
		h.MaxBodyBytes = 5 << 20
	}
	if h.Concurrency <= 0 {
		h.Concurrency = 8
	}
	if h.RequestsPerSecond <= 0 {
		h.RequestsPerSecond = 5
	}
	h.Burst = burstFor(h.Burst, h.RequestsPerSecond)
	h.Extractor = strings.ToLower(strings.TrimSpace(h.Extractor))
	if h.Extractor == "" {
		h.Extractor = "strip"
	}
	h.CrawlPolicy = h.CrawlPolicy.Normalize()
	return h
}

// Overlap is the configured chunk overlap, zero when unset.
func (h HarvestConfig) Overlap() int {
	if h.ChunkOverlap == nil {
		return 0
	}
	return *h.ChunkOverlap
}

func (h HarvestConfig) Validate() error {
	if overlap := h.Overlap(); overlap >= h.MaxChunkSize {
		return fmt.Errorf("harvest.chunk_overlap (%d) must be smaller than harvest.max_chunk_size (%d)", overlap, h.MaxChunkSize)
	}
	if h.Extractor != "strip" && h.Extractor != "readability" {
		return fmt.Errorf("harvest.extractor must be strip or readability, got %q", h.Extractor)
	}
	if h.PerHostRPS < 0 {
		return fmt.Errorf("harvest.per_host_rps cannot be negative")
	}
	return h.CrawlPolicy.Validate()
}

func (p PipelineConfig) Normalize() PipelineConfig {
	if p.MaxResults <= 0 {
		p.MaxResults = 10
	}
	return p
}

func (t TelemetryConfig) Normalize() TelemetryConfig {
	if strings.TrimSpace(t.MetricsPath) == "" {
		t.MetricsPath = "/metrics"
	}
	return t
}

func (s ServerConfig) Normalize() ServerConfig {
	if strings.TrimSpace(s.Address) == "" {
		s.Address = ":8080"
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = 2 * time.Minute
	}
	return s
}

// Normalize applies defaults across every section.
func (c *Config) Normalize() {
	c.Server = c.Server.Normalize()
	for i := range c.Providers {
		c.Providers[i] = c.Providers[i].Normalize()
	}
	c.Harvest = c.Harvest.Normalize()
	c.Rerank = c.Rerank.Normalize()
	c.Topics = normalizeTopics(c.Topics)
	c.Pipeline = c.Pipeline.Normalize()
	c.Telemetry = c.Telemetry.Normalize()
	if strings.TrimSpace(c.Storage.Redis.KeyPrefix) == "" {
		c.Storage.Redis.KeyPrefix = "evidence:"
	}
}

// Validate returns every configuration problem joined together.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
		if _, dup := seen[p.ID]; dup {
			errs = append(errs, fmt.Errorf("providers: %q listed twice", p.ID))
		}
		seen[p.ID] = struct{}{}
	}
	if err := c.Harvest.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Rerank.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Storage.Redis.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ActiveProviders returns the enabled providers in configured order.
func (c *Config) ActiveProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if !p.Disabled {
			out = append(out, p)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "json")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("harvest.respect_robots", true)
	v.SetDefault("harvest.extractor", "strip")
	v.SetDefault("harvest.chunk_overlap", 200)
	v.SetDefault("rerank.authority_boost", DefaultAuthorityBoost)
	v.SetDefault("rerank.recency_boost", DefaultRecencyBoost)
	v.SetDefault("rerank.recency_window", "8760h")
	v.SetDefault("pipeline.enrich", true)
	v.SetDefault("pipeline.direct_fetch", true)
	v.SetDefault("telemetry.enabled", true)
}

// LoadConfig loads config from path, or searches the usual locations for
// config.json when path is empty. A missing file is not an error; values then
// come from defaults and EVIDENCE_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("EVIDENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
