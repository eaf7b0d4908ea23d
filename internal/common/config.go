package common

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the full crawl configuration surface
type Config struct {
	Crawl      CrawlConfig      `toml:"crawl"`
	Render     RenderConfig     `toml:"render"`
	Replay     ReplayConfig     `toml:"replay"`
	HTTP       HTTPConfig       `toml:"http"`
	Discovery  DiscoveryConfig  `toml:"discovery"`
	Robots     RobotsConfig     `toml:"robots"`
	Privacy    PrivacyConfig    `toml:"privacy"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
	Resume     ResumeConfig     `toml:"resume"`
	Logging    LoggingConfig    `toml:"logging"`
}

// CrawlConfig holds seeds, output destination and hard budgets
type CrawlConfig struct {
	Seeds     []string `toml:"seeds" validate:"required,min=1,dive,url"`
	OutAtls   string   `toml:"out_atls" validate:"required,min=5"`
	MaxPages  int      `toml:"max_pages" validate:"gte=0"`   // 0 = unlimited
	MaxDepth  int      `toml:"max_depth" validate:"gte=-1"`  // -1 = unlimited, 0 = seeds only
	MaxErrors int      `toml:"max_errors" validate:"gte=-1"` // -1 = unlimited, 0 = abort on first
}

// RenderConfig controls the fetch/render layer
type RenderConfig struct {
	Mode            string `toml:"mode" validate:"oneof=raw prerender full"`
	Concurrency     int    `toml:"concurrency" validate:"gt=0"`
	TimeoutMs       int    `toml:"timeout_ms" validate:"gt=0"`
	MaxBytesPerPage int    `toml:"max_bytes_per_page" validate:"gt=0"`
	WaitCondition   string `toml:"wait_condition"` // "domcontentloaded", "networkidle", "selector(...)", "timeout"
}

// ReplayConfig controls which replay capabilities the archive declares
type ReplayConfig struct {
	Tier  string `toml:"tier" validate:"oneof=html html+css full"`
	Blobs bool   `toml:"blobs"` // capture page bodies into the content-addressed blob store
}

// HTTPConfig controls request issuance
type HTTPConfig struct {
	RPS        float64 `toml:"rps" validate:"gt=0"`
	PerHostRPS float64 `toml:"per_host_rps" validate:"gt=0"`
	UserAgent  string  `toml:"user_agent"`
}

// DiscoveryConfig controls link expansion and URL normalization inputs
type DiscoveryConfig struct {
	FollowExternal bool     `toml:"follow_external"`
	ParamPolicy    string   `toml:"param_policy" validate:"oneof=keep sample strip"`
	BlockList      []string `toml:"block_list"` // tracking-parameter patterns stripped from normalized URLs
	AllowURLs      []string `toml:"allow_urls"` // host/path glob patterns
	DenyURLs       []string `toml:"deny_urls"`
	SortQuery      bool     `toml:"sort_query"`
}

// RobotsConfig controls robots.txt handling
type RobotsConfig struct {
	Respect      *bool  `toml:"respect"`       // default true
	OverrideUsed bool   `toml:"override_used"` // ignore disallows but record the override
	FailPolicy   string `toml:"fail_policy" validate:"oneof=allow deny"`
	CacheTTL     string `toml:"cache_ttl"` // duration string, per-origin robots cache TTL
}

// PrivacyConfig holds security defaults, all true unless disabled
type PrivacyConfig struct {
	StripCookies      *bool `toml:"strip_cookies"`
	StripAuthHeaders  *bool `toml:"strip_auth_headers"`
	RedactInputValues *bool `toml:"redact_input_values"`
	RedactForms       *bool `toml:"redact_forms"`
}

// CheckpointConfig controls checkpoint cadence
type CheckpointConfig struct {
	Enabled      *bool `toml:"enabled"`
	Interval     int   `toml:"interval" validate:"gte=0"`      // every N completed pages
	EverySeconds int   `toml:"every_seconds" validate:"gte=0"` // or every T seconds
}

// ResumeConfig points at an existing staging directory for resume
type ResumeConfig struct {
	StagingDir string `toml:"staging_dir"`
}

// LoggingConfig controls arbor output
type LoggingConfig struct {
	Level  string   `toml:"level"`
	Output []string `toml:"output"` // "stdout", "file"
	Dir    string   `toml:"dir"`
	Mode   string   `toml:"mode" validate:"oneof=default quiet json"`
}

// DefaultConfig returns a configuration with all defaults applied
func DefaultConfig() *Config {
	t := true
	return &Config{
		Crawl: CrawlConfig{
			MaxPages:  0,
			MaxDepth:  -1,
			MaxErrors: 100,
		},
		Render: RenderConfig{
			Mode:            "raw",
			Concurrency:     4,
			TimeoutMs:       30000,
			MaxBytesPerPage: 50 * 1024 * 1024,
			WaitCondition:   "domcontentloaded",
		},
		Replay: ReplayConfig{
			Tier: "html",
		},
		HTTP: HTTPConfig{
			RPS:        8,
			PerHostRPS: 2,
			UserAgent:  "Cartographer/" + Version,
		},
		Discovery: DiscoveryConfig{
			ParamPolicy: "keep",
			BlockList:   DefaultTrackingParams(),
			SortQuery:   false,
		},
		Robots: RobotsConfig{
			Respect:    &t,
			FailPolicy: "allow",
			CacheTTL:   "1h",
		},
		Privacy: PrivacyConfig{
			StripCookies:      &t,
			StripAuthHeaders:  &t,
			RedactInputValues: &t,
			RedactForms:       &t,
		},
		Checkpoint: CheckpointConfig{
			Enabled:      &t,
			Interval:     500,
			EverySeconds: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
			Mode:   "default",
		},
	}
}

// DefaultTrackingParams returns the default tracking-parameter block list
func DefaultTrackingParams() []string {
	return []string{
		"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
		"gclid", "fbclid", "msclkid", "mc_cid", "mc_eid", "ref", "igshid",
	}
}

// LoadConfig loads configuration from one or more TOML files, later files
// overriding earlier ones, on top of defaults
func LoadConfig(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration against its struct constraints
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.ParseDuration(c.Robots.CacheTTL); err != nil {
		return fmt.Errorf("invalid robots.cache_ttl: %w", err)
	}
	return nil
}

// RobotsRespect reports whether robots.txt should be honored
func (c *Config) RobotsRespect() bool {
	return c.Robots.Respect == nil || *c.Robots.Respect
}

// CheckpointEnabled reports whether checkpointing is active
func (c *Config) CheckpointEnabled() bool {
	return c.Checkpoint.Enabled == nil || *c.Checkpoint.Enabled
}

// RenderTimeout returns the per-page time budget
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.TimeoutMs) * time.Millisecond
}

// RobotsCacheTTL returns the parsed per-origin robots cache TTL
func (c *Config) RobotsCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Robots.CacheTTL)
	if err != nil {
		return time.Hour
	}
	return d
}

func boolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// StripCookies reports whether cookies are stripped before rendering
func (c *Config) StripCookies() bool { return boolValue(c.Privacy.StripCookies, true) }

// StripAuthHeaders reports whether auth headers are stripped before rendering
func (c *Config) StripAuthHeaders() bool { return boolValue(c.Privacy.StripAuthHeaders, true) }

// RedactInputValues reports whether form input values are redacted in captures
func (c *Config) RedactInputValues() bool { return boolValue(c.Privacy.RedactInputValues, true) }

// RedactForms reports whether whole form payloads are redacted in captures
func (c *Config) RedactForms() bool { return boolValue(c.Privacy.RedactForms, true) }
