package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file from path, expanding ${VAR}
// environment references the way the teacher's layered loader does, then
// applies a fixed set of environment-variable overrides on top so a
// deployer can tune secrets and knobs without editing the file.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	cfg, err := decode(expanded)
	if err != nil {
		return nil, err
	}

	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	cfg.Defaults()
	return cfg, nil
}

func decode(data string) (*Config, error) {
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(data)))
	decoder.KnownFields(true)
	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected a single YAML document")
	}
	return &cfg, nil
}

// applyEnvOverrides lets the recognized environment variables from
// spec.md's CLI/Environment section take precedence over file values,
// without requiring a deployer to template the YAML for secrets.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("AGENTCORE_MODEL"); ok {
		cfg.Model = v
	}
	if v, ok := os.LookupEnv("AGENTCORE_SECURITY_MODE"); ok {
		cfg.SecurityMode = v
	}
	if v, ok := os.LookupEnv("AGENTCORE_WORKSPACE_DIR"); ok {
		cfg.WorkspaceDir = v
	}
	if v, ok := os.LookupEnv("AGENTCORE_ADMIN_USER_IDS"); ok {
		cfg.AdminUserIDs = splitCSV(v)
	}
	if v, ok := os.LookupEnv("AGENTCORE_TOOL_TIMEOUT_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.CallTimeoutSeconds = n
		}
	}
	if v, ok := os.LookupEnv("AGENTCORE_SESSION_DSN"); ok {
		cfg.Session.DSN = v
	}
	if v, ok := os.LookupEnv("AGENTCORE_JWT_SECRET"); ok {
		cfg.Auth.JWTSecret = v
	}

	overrideProviderKey(cfg, "anthropic", "AGENTCORE_ANTHROPIC_API_KEY")
	overrideProviderKey(cfg, "openai", "AGENTCORE_OPENAI_API_KEY")
}

func overrideProviderKey(cfg *Config, provider, envVar string) {
	v, ok := os.LookupEnv(envVar)
	if !ok {
		return
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	p := cfg.Providers[provider]
	p.APIKey = v
	cfg.Providers[provider] = p
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
