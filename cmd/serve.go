package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/tag-backend/internal/cache"
	"github.com/shaharia-lab/tag-backend/internal/config"
	"github.com/shaharia-lab/tag-backend/internal/embedding"
	"github.com/shaharia-lab/tag-backend/internal/graph"
	"github.com/shaharia-lab/tag-backend/internal/housekeeping"
	"github.com/shaharia-lab/tag-backend/internal/intent"
	"github.com/shaharia-lab/tag-backend/internal/llm"
	"github.com/shaharia-lab/tag-backend/internal/logger"
	"github.com/shaharia-lab/tag-backend/internal/manifest"
	"github.com/shaharia-lab/tag-backend/internal/metrics"
	"github.com/shaharia-lab/tag-backend/internal/orchestrator"
	"github.com/shaharia-lab/tag-backend/internal/schema"
	"github.com/shaharia-lab/tag-backend/internal/schemas"
	"github.com/shaharia-lab/tag-backend/internal/server"
	"github.com/shaharia-lab/tag-backend/internal/sessionstore"
	"github.com/shaharia-lab/tag-backend/internal/sqlbuild"
	"github.com/shaharia-lab/tag-backend/internal/sqlvalidate"
)

// NewServeCmd returns the "serve" cobra command, which boots the full
// dependency graph and blocks on the HTTP server until an interrupt or
// SIGTERM is received.
func NewServeCmd(cfg *config.AppConfig) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the conversational backend's HTTP server",
		Long: "Start the HTTP server that accepts chat turns over POST /query and " +
			"POST /chat, streaming NDJSON responses, and exposes /healthz and /metrics.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, cfg)
		},
	}
	serveCmd.Flags().Int("port", 0, "HTTP server port (overrides PORT env var / config default)")
	return serveCmd
}

func runServe(cmd *cobra.Command, cfg *config.AppConfig) error {
	port := cfg.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}

	sysLogger, err := logger.NewSystemLogger(cfg.LogDir, cfg.SlogLevel())
	if err != nil {
		return fmt.Errorf("initializing system logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loadManifest := func() *manifest.Catalog {
		return manifest.New(manifest.Load(sysLogger, cfg.ManifestPath))
	}
	registry := manifest.NewRegistry(loadManifest())

	inspector := schema.NewInspector()
	defer inspector.Close()

	apiKey := cfg.LLMAPIKey
	if apiKey == "" {
		apiKey = cfg.OpenAIAPIKey
	}

	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	var retry *llm.RetryWrapper
	if apiKey != "" {
		client := llm.NewOpenAIClient(llm.Config{APIKey: apiKey, BaseURL: cfg.LLMBaseURL, Model: cfg.LLMModel})
		retry = llm.NewRetryWrapper(client, sysLogger).WithMetrics(appMetrics)
	} else {
		sysLogger.Warn("no LLM API key configured, running with deterministic fallbacks only")
	}

	router := intent.NewRouter(retry)
	in := intent.NewIntent(retry)
	mutationResolver := intent.NewMutationResolver(registry)
	builder := sqlbuild.New(registry, retry)
	validator := sqlvalidate.New()

	connString := func(state *schemas.AgentState) string {
		if v, ok := state.Metadata["database_url"].(string); ok && v != "" {
			return v
		}
		return cfg.DatabaseURL
	}

	g := graph.New(graph.Nodes{
		Route:              graph.NewRouteNode(router),
		Chat:               graph.NewChatNode(retry),
		Intent:             graph.NewIntentNode(in, registry, embedding.NoopEmbedder{}),
		MutationUnderstand: graph.NewMutationUnderstandNode(mutationResolver),
		SQLBuild:           graph.NewSQLBuildNode(registry, builder),
		SQLValidate:        graph.NewSQLValidateNode(validator, inspector, connString),
		SQLExecute:         graph.NewSQLExecuteNode(inspector, connString),
		Respond:            graph.NewRespondNode(),
	})

	redisClient := newRedisClient(cfg.RedisURL, sysLogger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	sessions := sessionstore.New(redisClient, sysLogger)
	respCache := cache.New(redisClient, sysLogger)

	sched, err := housekeeping.New(inspector, loadManifest, registry.Set, sysLogger)
	if err != nil {
		return fmt.Errorf("building housekeeping scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting housekeeping scheduler: %w", err)
	}
	defer sched.Stop()

	providerUsed := "fallback"
	if apiKey != "" {
		providerUsed = cfg.LLMModel
	}

	orch := &orchestrator.Orchestrator{
		Graph:             g,
		Sessions:          sessions,
		Cache:             respCache,
		Logger:            sysLogger,
		Metrics:           appMetrics,
		UserLookup:        inspector,
		DefaultConnString: cfg.DatabaseURL,
		ProviderUsed:      providerUsed,
	}

	srv := server.New(orch, port)
	sysLogger.Info("tag-backend starting", "port", port)
	return srv.Run(ctx)
}

func newRedisClient(url string, log *slog.Logger) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("parsing REDIS_URL, continuing without session/cache persistence", "error", err)
		return nil
	}
	return redis.NewClient(opts)
}
