// Package config loads the layered YAML-plus-environment configuration
// that wires up the dispatch-and-execution core: provider credentials,
// the session-store backend, and the ambient operational knobs.
package config

// Config is the root configuration document, decoded from a single YAML
// file with environment-variable overrides applied on top.
type Config struct {
	Version int `yaml:"version"`

	Model        string                  `yaml:"model"`
	SystemPrompt string                  `yaml:"system_prompt"`
	Providers    map[string]ProviderConfig `yaml:"providers"`

	Session     SessionConfig     `yaml:"session"`
	Executor    ExecutorConfig    `yaml:"executor"`
	Broadcaster BroadcasterConfig `yaml:"broadcaster"`
	Auth        AuthConfig        `yaml:"auth"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing"`

	// WorkspaceDir is the root the exec tool resolves relative cwds under.
	WorkspaceDir string `yaml:"workspace_dir"`

	// SecurityMode is "full" or "restricted"; see agent.SecurityMode.
	SecurityMode string `yaml:"security_mode"`

	// AdminUserIDs is a comma-separated allow-list, kept as the raw list
	// here; callers decide what "admin" unlocks.
	AdminUserIDs []string `yaml:"admin_user_ids"`
}

// ProviderConfig configures one upstream model provider (Anthropic,
// OpenAI, or an OpenAI-compatible gateway).
type ProviderConfig struct {
	APIKey       string   `yaml:"api_key"`
	BaseURL      string   `yaml:"base_url"`
	DefaultModel string   `yaml:"default_model"`
	Models       []string `yaml:"models"`

	// TokenURL/ClientID/ClientSecret configure an OAuth2 client-credentials
	// token source for enterprise gateway deployments. When TokenURL is
	// empty, APIKey is used as a bare bearer token instead.
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// SessionConfig selects and configures the persistence backend.
type SessionConfig struct {
	// Backend is "memory", "postgres", or "sqlite".
	Backend       string `yaml:"backend"`
	DSN           string `yaml:"dsn"`
	HistoryWindow int    `yaml:"history_window"`
}

// ExecutorConfig mirrors agent.ExecutorConfig in YAML-friendly form.
type ExecutorConfig struct {
	MaxConcurrent      int `yaml:"max_concurrent"`
	MaxAttempts        int `yaml:"max_attempts"`
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
}

// BroadcasterConfig configures the event bus's per-subscriber queue depth.
type BroadcasterConfig struct {
	SubscriberCapacity int `yaml:"subscriber_capacity"`
}

// AuthConfig configures bearer session-token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// MetricsConfig toggles Prometheus metric registration.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig configures OTLP/gRPC span export for the active-span
// collector. Disabled by default, leaving the no-op tracer in place.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}

// Defaults applies the zero-value defaults this config relies on, used
// both after loading from disk and when constructing a Config in code
// (e.g. in tests) without going through Load.
func (c *Config) Defaults() {
	if c.Model == "" {
		c.Model = "claude-3-5-sonnet-latest"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.HistoryWindow <= 0 {
		c.Session.HistoryWindow = 50
	}
	if c.Executor.MaxConcurrent <= 0 {
		c.Executor.MaxConcurrent = 8
	}
	if c.Executor.MaxAttempts <= 0 {
		c.Executor.MaxAttempts = 3
	}
	if c.Executor.CallTimeoutSeconds <= 0 {
		c.Executor.CallTimeoutSeconds = 60
	}
	if c.Broadcaster.SubscriberCapacity <= 0 {
		c.Broadcaster.SubscriberCapacity = 256
	}
	if c.SecurityMode == "" {
		c.SecurityMode = "restricted"
	}
	if c.WorkspaceDir == "" {
		c.WorkspaceDir = "."
	}
}
