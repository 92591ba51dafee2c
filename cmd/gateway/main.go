// Command gateway serves the A2A JSON-RPC gateway in front of a Dify app or
// an LLM provider.
//
// Configuration is via environment variables (a .env file is loaded when
// present):
//
//	HOST, PORT              - listen address (default: 0.0.0.0:8080)
//	LOG_LEVEL, LOG_FORMAT   - debug|info|warn|error, text|json
//	CORS_ORIGINS            - comma-separated origins (default: *)
//	UPSTREAM_PROVIDER       - dify, openai, anthropic, or google (default: dify)
//	UPSTREAM_TIMEOUT        - per-connection timeout (default: 300s)
//	UPSTREAM_RETRY_ATTEMPTS - attempts to open a Dify stream (default: 3)
//	DIFY_API_URL            - Dify base URL (default: http://api:5001)
//	DIFY_API_KEY            - Dify app key (required for dify)
//	OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY
//	GOOGLE_CLOUD_PROJECT    - use Vertex AI for google (with GOOGLE_CLOUD_LOCATION)
//	REDIS_ENABLED           - share session mappings through Redis
//	REDIS_URL | REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB
//	REDIS_TTL_DAYS          - session mapping lifetime (default: 7)
//	MCP_ENABLED, AGUI_ENABLED
//
// Usage:
//
//	DIFY_API_KEY=app-xxx go run ./cmd/gateway
//
// With the stdio argument the task tools are served as an MCP server over
// stdin/stdout instead of HTTP, for desktop MCP clients:
//
//	DIFY_API_KEY=app-xxx go run ./cmd/gateway stdio
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	gateway "github.com/neocode24/dify-a2a-gateway"
	"github.com/neocode24/dify-a2a-gateway/internal/conversation"
	"github.com/neocode24/dify-a2a-gateway/manager"
	"github.com/neocode24/dify-a2a-gateway/mcp"
	"github.com/neocode24/dify-a2a-gateway/provider/anthropic"
	"github.com/neocode24/dify-a2a-gateway/provider/dify"
	"github.com/neocode24/dify-a2a-gateway/provider/google"
	"github.com/neocode24/dify-a2a-gateway/provider/openai"
	"github.com/neocode24/dify-a2a-gateway/server"
	"github.com/neocode24/dify-a2a-gateway/session"
	"github.com/neocode24/dify-a2a-gateway/store"
	"github.com/neocode24/dify-a2a-gateway/translator"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	serve := run
	if len(os.Args) > 1 && os.Args[1] == "stdio" {
		serve = runStdio
	}
	if err := serve(cfg, logger); err != nil {
		logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := session.NewFromConfig(ctx, cfg.Session(), logger)
	defer cache.Close()

	mgr, err := newManager(ctx, cfg, cache, logger)
	if err != nil {
		return err
	}

	handler := server.New(mgr,
		server.WithLogger(logger),
		server.WithCache(cache),
		server.WithVersion(version),
		server.WithUpstream(cfg.Provider),
		server.WithCORSOrigins(cfg.CORSOrigins...),
		server.WithAGUI(cfg.AGUIEnabled),
		server.WithMCP(cfg.MCPEnabled),
	)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE needs no write timeout
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gateway starting",
			"addr", srv.Addr,
			"version", version,
			"upstream", cfg.Provider,
			"dify_app_id", cfg.DifyAppID,
			"mcp", cfg.MCPEnabled,
			"agui", cfg.AGUIEnabled,
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "active_runs", mgr.ActiveRuns())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("gateway stopped")
	return nil
}

// runStdio serves the MCP task tools over stdin/stdout until the input closes.
func runStdio(cfg *Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := session.NewFromConfig(ctx, cfg.Session(), logger)
	defer cache.Close()

	mgr, err := newManager(ctx, cfg, cache, logger)
	if err != nil {
		return err
	}

	logger.Info("mcp stdio server starting", "version", version, "upstream", cfg.Provider)
	return mcp.ServeStdio(mgr,
		mcp.WithName(server.ServiceName),
		mcp.WithVersion(version),
		mcp.WithLogger(logger),
	)
}

func newManager(ctx context.Context, cfg *Config, cache session.Cache, logger *slog.Logger) (*manager.Manager, error) {
	upstream, err := newUpstream(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create upstream: %w", err)
	}

	tr := translator.New(
		translator.WithCache(cache),
		translator.WithCacheTTL(cfg.SessionTTL()),
		translator.WithLogger(logger),
	)
	return manager.New(store.NewMemoryStore(), upstream, tr, manager.WithLogger(logger)), nil
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	level, _ := cfg.Level()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newUpstream creates the configured chat client. LLM providers share one
// conversation store so follow-ups replay prior turns.
func newUpstream(ctx context.Context, cfg *Config, logger *slog.Logger) (gateway.ChatClient, error) {
	history := conversation.NewStore()
	hc := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case ProviderDify:
		return dify.New(cfg.DifyURL, cfg.DifyKey,
			dify.WithTimeout(cfg.Timeout),
			dify.WithRetry(cfg.Retry()),
			dify.WithLogger(logger),
		), nil
	case ProviderOpenAI:
		opts := []openai.ClientOption{
			openai.WithHTTPClient(hc),
			openai.WithMaxRetries(cfg.RetryAttempts - 1),
			openai.WithSystemPrompt(cfg.SystemPrompt),
			openai.WithHistory(history),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		if cfg.OpenAIModel != "" {
			opts = append(opts, openai.WithModel(openai.ChatModel(cfg.OpenAIModel)))
		}
		return openai.New(cfg.OpenAIKey, opts...), nil
	case ProviderAnthropic:
		opts := []anthropic.ClientOption{
			anthropic.WithHTTPClient(hc),
			anthropic.WithMaxRetries(cfg.RetryAttempts - 1),
			anthropic.WithSystemPrompt(cfg.SystemPrompt),
			anthropic.WithHistory(history),
		}
		if cfg.AnthropicModel != "" {
			opts = append(opts, anthropic.WithModel(anthropic.ChatModel(cfg.AnthropicModel)))
		}
		return anthropic.New(cfg.AnthropicKey, opts...), nil
	case ProviderGoogle:
		opts := []google.ClientOption{
			google.WithHTTPClient(hc),
			google.WithSystemPrompt(cfg.SystemPrompt),
			google.WithHistory(history),
		}
		if cfg.GoogleModel != "" {
			opts = append(opts, google.WithModel(google.ChatModel(cfg.GoogleModel)))
		}
		if cfg.VertexProject != "" {
			opts = append(opts, google.WithVertex(cfg.VertexProject, cfg.VertexLocation))
		}
		return google.New(ctx, cfg.GoogleKey, opts...)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
