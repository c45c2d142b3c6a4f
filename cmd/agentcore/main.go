// Package main provides the CLI entry point for the agent core: a
// multi-channel AI agent backend that dispatches normalized messages
// through a tool-calling agent loop.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/coredispatch/agentcore/internal/agent"
	"github.com/coredispatch/agentcore/internal/agent/providers"
	"github.com/coredispatch/agentcore/internal/backoff"
	"github.com/coredispatch/agentcore/internal/config"
	"github.com/coredispatch/agentcore/internal/gateway"
	"github.com/coredispatch/agentcore/internal/multiagent"
	"github.com/coredispatch/agentcore/internal/observability"
	"github.com/coredispatch/agentcore/internal/sessions"
	"github.com/coredispatch/agentcore/internal/tools/exec"
	"github.com/coredispatch/agentcore/internal/tools/identity"
	"github.com/coredispatch/agentcore/internal/tools/message"
	"github.com/coredispatch/agentcore/internal/tools/policy"
	"github.com/coredispatch/agentcore/internal/tools/subagent"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentcore",
		Short:        "A multi-channel AI agent backend",
		Version:      fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildMigrateCmd())
	return root
}

// buildServeCmd starts a library-style dispatcher loop driven by stdin:
// each line is treated as one chat message on a single stub channel, and
// the assistant's reply is printed to stdout. Real channel transports are
// external collaborators this core doesn't implement.
func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher loop against a stdin channel adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "agentcore.yaml", "path to the configuration file")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		Insecure:     cfg.Tracing.Insecure,
		ServiceName:  cfg.Tracing.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
	}

	store, err := openStore(cfg.Session)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	providerRegistry := agent.NewProviderRegistry()
	if err := registerProviders(ctx, providerRegistry, cfg.Providers); err != nil {
		return err
	}

	broadcaster := gateway.NewBroadcaster(cfg.Broadcaster.SubscriberCapacity)

	toolRegistry := agent.NewToolRegistry()
	subagentCfg := multiagent.DefaultConfig()
	subagentCfg.Sink = broadcaster
	subagents := multiagent.NewRegistry(subagentCfg)
	defer subagents.Stop()

	toolRegistry.Register(exec.New())
	toolRegistry.Register(subagent.New())
	toolRegistry.Register(message.New(noopPoster{}))
	toolRegistry.Register(identity.New(noopResolver{}))

	executor := agent.NewExecutor(toolRegistry, agent.ExecutorConfig{
		MaxConcurrent: cfg.Executor.MaxConcurrent,
		MaxAttempts:   cfg.Executor.MaxAttempts,
		CallTimeout:   secondsToDuration(cfg.Executor.CallTimeoutSeconds),
		Policy:        backoff.DefaultPolicy(),
	})

	dispatcher := gateway.NewDispatcher(
		gateway.Config{
			SystemPrompt:  cfg.SystemPrompt,
			Model:         cfg.Model,
			HistoryWindow: cfg.Session.HistoryWindow,
			WorkspaceDir:  cfg.WorkspaceDir,
			SecurityMode:  agent.SecurityMode(cfg.SecurityMode),
			APIKeys:       apiKeyMap(cfg.Providers),
		},
		store,
		toolRegistry,
		providerRegistry,
		executor,
		subagents,
		broadcaster,
		gateway.StaticPermissionResolver{Policy: policy.FromProfile(policy.ProfileFull)},
		metrics,
		logger,
	)

	fmt.Fprintln(out, "agentcore serving; one message per line, Ctrl-D to stop")
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		result := dispatcher.Dispatch(ctx, gateway.RawMessage{
			ChannelType: "cli",
			ChannelID:   1,
			ChatID:      "stdin",
			UserID:      "local",
			Text:        line,
		})
		if result.Error != "" {
			fmt.Fprintf(out, "error: %s\n", result.Error)
			continue
		}
		fmt.Fprintln(out, result.Response)
	}
	return scanner.Err()
}

func buildMigrateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the session-store schema for the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runMigrate(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "agentcore.yaml", "path to the configuration file")
	return cmd
}

func runMigrate(ctx context.Context, cfg *config.Config, out io.Writer) error {
	switch cfg.Session.Backend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Session.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if err := sessions.MigratePostgres(db); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		fmt.Fprintln(out, "postgres schema applied")
	case "sqlite", "":
		store, err := sessions.NewSQLiteStore(cfg.Session.DSN)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		defer store.Close()
		fmt.Fprintln(out, "sqlite schema applied")
	default:
		fmt.Fprintf(out, "backend %q requires no schema migration\n", cfg.Session.Backend)
	}
	return nil
}

func openStore(cfg config.SessionConfig) (sessions.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return sessions.NewPostgresStore(sessions.DefaultPostgresConfig(cfg.DSN))
	case "sqlite":
		return sessions.NewSQLiteStore(cfg.DSN)
	default:
		return sessions.NewMemoryStore(), nil
	}
}

// registerProviders builds and registers the configured provider adapters.
// A provider whose TokenURL is set resolves its API key through an OAuth2
// client-credentials grant instead of using the configured APIKey directly,
// for gateway deployments that front Anthropic/OpenAI with their own
// credential exchange.
func registerProviders(ctx context.Context, registry *agent.ProviderRegistry, configured map[string]config.ProviderConfig) error {
	if anthropicCfg, ok := configured["anthropic"]; ok {
		apiKey, err := resolveProviderAPIKey(ctx, anthropicCfg)
		if err != nil {
			return fmt.Errorf("anthropic provider: %w", err)
		}
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       apiKey,
			BaseURL:      anthropicCfg.BaseURL,
			DefaultModel: anthropicCfg.DefaultModel,
		})
		if err != nil {
			return fmt.Errorf("anthropic provider: %w", err)
		}
		registry.Register(p, anthropicCfg.Models...)
	}
	if openaiCfg, ok := configured["openai"]; ok {
		apiKey, err := resolveProviderAPIKey(ctx, openaiCfg)
		if err != nil {
			return fmt.Errorf("openai provider: %w", err)
		}
		p, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       apiKey,
			BaseURL:      openaiCfg.BaseURL,
			DefaultModel: openaiCfg.DefaultModel,
		})
		if err != nil {
			return fmt.Errorf("openai provider: %w", err)
		}
		registry.Register(p, openaiCfg.Models...)
	}
	return nil
}

func resolveProviderAPIKey(ctx context.Context, cfg config.ProviderConfig) (string, error) {
	return providers.ResolveAPIKey(ctx, providers.OAuthConfig{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, cfg.APIKey)
}

func apiKeyMap(configured map[string]config.ProviderConfig) map[string]string {
	out := make(map[string]string, len(configured))
	for name, p := range configured {
		out[name] = p.APIKey
	}
	return out
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// noopPoster/noopResolver stand in for the external channel-platform and
// identity-registry collaborators spec.md places out of scope; a real
// deployment supplies its own implementations at wiring time.
type noopPoster struct{}

func (noopPoster) Post(channelID int64, text, replyToID string) (postID, url string, err error) {
	return "", "", fmt.Errorf("no message transport configured")
}

type noopResolver struct{}

func (noopResolver) Lookup(userID string) (identity.Profile, bool, error) {
	return identity.Profile{}, false, nil
}
