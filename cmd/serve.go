package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conductorhq/conductor/internal/agent"
	"github.com/conductorhq/conductor/internal/channel"
	"github.com/conductorhq/conductor/internal/config"
	"github.com/conductorhq/conductor/internal/conversation"
	"github.com/conductorhq/conductor/internal/gateway"
	"github.com/conductorhq/conductor/internal/heartbeat"
	"github.com/conductorhq/conductor/internal/intake"
	"github.com/conductorhq/conductor/internal/llm"
	"github.com/conductorhq/conductor/internal/mcp"
	"github.com/conductorhq/conductor/internal/memory"
	"github.com/conductorhq/conductor/internal/observability"
	"github.com/conductorhq/conductor/internal/store"
	"github.com/conductorhq/conductor/internal/store/pg"
	"github.com/conductorhq/conductor/internal/tools"
	"github.com/conductorhq/conductor/pkg/protocol"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conductor gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.HasAnyProvider() {
		fmt.Println("No AI provider API key found.")
		fmt.Println()
		fmt.Println("  export ANTHROPIC_API_KEY=...   (or OPENAI_API_KEY)")
		fmt.Println()
		fmt.Println("Or run the setup wizard:  conductor onboard")
		return errors.New("no provider configured")
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing (no-op when no endpoint is configured).
	traceEndpoint := ""
	if cfg.Telemetry.Enabled {
		traceEndpoint = cfg.Telemetry.Endpoint
	}
	shutdownTracing, err := observability.InitTracing(ctx, traceEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		slog.Warn("tracing.init_failed", "error", err)
	} else {
		defer shutdownTracing(context.Background())
	}

	// Model providers.
	llms := llm.NewRegistry()
	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		client, err := llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:  key,
			BaseURL: cfg.Providers.Anthropic.APIBase,
			Model:   cfg.Providers.Anthropic.Model,
		})
		if err != nil {
			return fmt.Errorf("anthropic client: %w", err)
		}
		llms.Register(client)
	}
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  key,
			BaseURL: cfg.Providers.OpenAI.APIBase,
			Model:   cfg.Providers.OpenAI.Model,
		})
		if err != nil {
			return fmt.Errorf("openai client: %w", err)
		}
		llms.Register(client)
	}
	if cfg.Providers.Default != "" {
		if err := llms.SetDefault(cfg.Providers.Default); err != nil {
			slog.Warn("llm.default_unavailable", "provider", cfg.Providers.Default, "error", err)
		}
	}
	defaultClient, err := llms.Default()
	if err != nil {
		return fmt.Errorf("model providers: %w", err)
	}

	// Persistence.
	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	var (
		history    store.HistoryStore
		agentState store.AgentStateStore
	)
	if cfg.IsManagedMode() {
		dsn := cfg.Storage.PostgresDSN
		if err := pg.Migrate(dsn); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		db, err := pg.OpenDB(dsn)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer db.Close()
		st := pg.NewStore(db)
		history, agentState = st, st
		slog.Info("storage.ready", "mode", "managed")
	} else {
		st, err := store.NewSQLiteStore(filepath.Join(dataDir, "conductor.db"))
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		defer st.Close()
		history, agentState = st, st
		slog.Info("storage.ready", "mode", "standalone", "dir", dataDir)
	}

	convos, err := conversation.NewManager(filepath.Join(dataDir, "conversations"))
	if err != nil {
		return fmt.Errorf("conversation store: %w", err)
	}

	// Tools and shared memory.
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)
	shared := memory.NewShared()

	// Agent runtimes, with per-agent config overrides applied.
	runtimes := buildRuntimes(cfg, llms, defaultClient, registry, agentState, shared)
	selector := agent.NewSelector(defaultClient)

	// Gateway wiring. The channel manager delivers through the server,
	// which is constructed after it; the SenderFunc closure breaks the
	// cycle.
	var srv *gateway.Server
	channels := channel.NewManager(channel.SenderFunc(func(id string, msg protocol.ChannelMessage) error {
		return srv.Deliver(id, msg)
	}))
	orch := gateway.NewOrchestrator(selector, runtimes, channels)
	pipeline := intake.NewPipeline(convos, history, channels, orch.Invoke)
	srv = gateway.NewServer(cfg, channels, pipeline)

	// External MCP servers.
	if len(cfg.MCP) > 0 {
		mcpMgr := mcp.NewManager(registry, cfg.MCP)
		if err := mcpMgr.Start(ctx); err != nil {
			slog.Warn("mcp.startup_errors", "error", err)
		}
		defer mcpMgr.Stop()
		slog.Info("mcp.ready", "configured", len(cfg.MCP), "tools", len(mcpMgr.ToolNames()))
	}

	// Read before the watcher starts mutating cfg.
	hbConf := cfg.Heartbeat

	// Hot-reload config edits (model overrides, rate limits).
	if err := config.Watch(ctx, cfgPath, cfg, nil); err != nil {
		slog.Warn("config.watch_unavailable", "error", err)
	}

	slog.Info("conductor.starting",
		"version", Version,
		"agents", len(runtimes),
		"providers", llms.Names(),
		"tools", registry.Len(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})
	if hbConf.Enabled {
		hb, err := heartbeat.NewScheduler(hbConf, pipeline)
		if err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}
		g.Go(func() error {
			if err := hb.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("conductor.stopped")
	return nil
}

// buildRuntimes instantiates the built-in agent set, applying config
// overrides for model, provider, sampling, and instructions.
func buildRuntimes(cfg *config.Config, llms *llm.Registry, defaultClient llm.Client, registry *tools.Registry, agentState store.AgentStateStore, shared *memory.Shared) []*agent.Runtime {
	var runtimes []*agent.Runtime
	for _, def := range agent.Definitions() {
		// Overrides only where the config sets them; the built-in
		// definitions already carry tuned defaults.
		spec := cfg.AgentOverride(def.Name)
		if spec.Model != "" {
			def.Model = spec.Model
		}
		if spec.MaxTokens > 0 {
			def.MaxTokens = spec.MaxTokens
		}
		if spec.Temperature != nil {
			def.Temperature = *spec.Temperature
		}
		if spec.Instructions != "" {
			def.Instructions = spec.Instructions
		}

		client := defaultClient
		if spec.Provider != "" {
			if c, err := llms.Get(spec.Provider); err == nil {
				client = c
			} else {
				slog.Warn("agent.provider_unavailable", "agent", def.Name, "provider", spec.Provider)
			}
		}

		runtimes = append(runtimes, agent.NewRuntime(def, client, registry,
			agent.WithStateStore(agentState),
			agent.WithSharedMemory(shared),
		))
	}
	return runtimes
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
}
