// Package main is the entry point for the YouTube knowledge MCP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	ytkmcp "github.com/efikuta/youtube-knowledge-mcp"
	"github.com/efikuta/youtube-knowledge-mcp/internal/budget"
	"github.com/efikuta/youtube-knowledge-mcp/internal/cache"
	"github.com/efikuta/youtube-knowledge-mcp/internal/config"
	"github.com/efikuta/youtube-knowledge-mcp/internal/counter"
	"github.com/efikuta/youtube-knowledge-mcp/internal/mcpserver"
	"github.com/efikuta/youtube-knowledge-mcp/internal/observability"
	"github.com/efikuta/youtube-knowledge-mcp/internal/provider/providers"
	"github.com/efikuta/youtube-knowledge-mcp/internal/ratelimit"
	"github.com/efikuta/youtube-knowledge-mcp/internal/schedule"
	"github.com/efikuta/youtube-knowledge-mcp/internal/secret"
	secretenv "github.com/efikuta/youtube-knowledge-mcp/internal/secret/env"
	secretvault "github.com/efikuta/youtube-knowledge-mcp/internal/secret/vault"
	"github.com/efikuta/youtube-knowledge-mcp/internal/tools"
	"github.com/efikuta/youtube-knowledge-mcp/internal/transcript"
	"github.com/efikuta/youtube-knowledge-mcp/internal/youtube"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/provider"
)

const secretCacheTTL = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file; defaults apply when empty")
	envFile := flag.String("env-file", "", "path to a .env file loaded before configuration")
	flag.Parse()

	// .env is optional; a named file that does not exist is an error.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	// Bootstrap logger until the configured one is up. Stderr keeps stdout
	// clean for the stdio transport.
	bootstrap := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(bootstrap)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		cfg        *config.Config
		cfgManager *config.Manager
	)
	if *configPath != "" {
		var err error
		cfgManager, err = config.NewManager(*configPath, bootstrap)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		defer cfgManager.Close()
		cfg = cfgManager.Get()
	} else {
		cfg = config.Default()
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:      parseLevel(cfg.Logging.Level),
		JSONFormat: cfg.Logging.Format != "text",
		AddSource:  cfg.Logging.AddSource,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}, observability.NewRedactor())
	slog.SetDefault(logger.Logger)

	logger.Info("starting youtube knowledge mcp server",
		"version", ytkmcp.Version,
		"transport", string(cfg.Server.Transport),
	)

	if cfgManager != nil {
		if err := cfgManager.Watch(ctx); err != nil {
			logger.Warn("config hot-reload disabled", "error", err)
		}
		cfgManager.OnChange(func(next *config.Config) {
			// Budget limits and cache TTLs apply on restart; log so
			// operators know a reload landed.
			logger.Info("configuration reloaded",
				"transport", string(next.Server.Transport))
		})
	}

	secrets := newSecretResolver(logger.Logger)
	defer secrets.Close()

	sched := schedule.NewRunner(logger.Logger, nil)
	defer sched.Stop()

	store, err := newCounterStore(ctx, cfg, secrets)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	ledger := budget.NewLedger(cfg.Budget, store, sched, logger.Logger)
	defer ledger.Close()

	cfg.Cache.Redis.Password = secrets.ResolveOptional(ctx, cfg.Cache.Redis.Password)
	respCache, err := cache.New(cfg.Cache, sched)
	if err != nil {
		return fmt.Errorf("init response cache: %w", err)
	}
	defer respCache.Close()

	obs, err := observability.NewManager(ctx, cfg.Observability, logger.Logger)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("observability shutdown failed", "error", err)
		}
	}()

	broker, err := newBroker(ctx, cfg, secrets, respCache, obs, logger.Logger)
	if err != nil {
		return fmt.Errorf("init generation broker: %w", err)
	}
	defer broker.Close()

	ytClient, err := youtube.NewClient(youtube.Config{
		APIKey:  secrets.ResolveOptional(ctx, cfg.YouTube.APIKey),
		BaseURL: cfg.YouTube.BaseURL,
		Timeout: cfg.YouTube.Timeout,
	}, ledger, logger.Logger)
	if err != nil {
		return fmt.Errorf("init youtube client: %w", err)
	}

	fetcher, err := transcript.NewFetcher(transcript.DefaultConfig(), ytClient, respCache, logger.Logger)
	if err != nil {
		return fmt.Errorf("init transcript fetcher: %w", err)
	}

	analyzer, err := tools.NewService(tools.Deps{
		LLM:         broker,
		Videos:      ytClient,
		Transcripts: fetcher,
		Ledger:      ledger,
		Cache:       respCache,
		Logger:      logger.Logger,
	})
	if err != nil {
		return fmt.Errorf("init analysis tools: %w", err)
	}

	jwtSecret, err := secrets.Resolve(ctx, cfg.Server.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("resolve jwt secret: %w", err)
	}

	srv, err := mcpserver.New(mcpserver.Config{
		Transport:     mcpserver.Transport(cfg.Server.Transport),
		Listen:        cfg.Server.Listen,
		MetricsListen: cfg.Server.MetricsListen,
		JWTSecret:     jwtSecret,
		Name:          "youtube-knowledge-mcp",
		Version:       ytkmcp.Version,
	}, analyzer, ledger, broker.ProviderWindows, logger.Logger)
	if err != nil {
		return fmt.Errorf("init mcp server: %w", err)
	}

	err = srv.Run(ctx)
	logger.Info("server stopped")
	return err
}

// newSecretResolver wires the env scheme always and the vault scheme when
// a Vault address is present in the environment.
func newSecretResolver(logger *slog.Logger) *secret.Resolver {
	resolver := secret.NewResolver()
	resolver.Register("env", secret.NewCachedProvider(secretenv.New(), secretCacheTTL))

	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		vp, err := secretvault.New(secretvault.Config{
			Address:  addr,
			Token:    os.Getenv("VAULT_TOKEN"),
			RoleID:   os.Getenv("VAULT_ROLE_ID"),
			SecretID: os.Getenv("VAULT_SECRET_ID"),
		}, logger)
		if err != nil {
			logger.Warn("vault secret provider unavailable", "error", err)
		} else {
			resolver.Register("vault", secret.NewCachedProvider(vp, secretCacheTTL))
		}
	}
	return resolver
}

func newCounterStore(ctx context.Context, cfg *config.Config, secrets *secret.Resolver) (counter.Store, error) {
	switch cfg.Persistence.Driver {
	case config.PersistenceRedis:
		redisCfg := cfg.Persistence.Redis
		redisCfg.Password = secrets.ResolveOptional(ctx, redisCfg.Password)
		store, err := counter.NewRedisStore(redisCfg)
		if err != nil {
			return nil, fmt.Errorf("init redis counter store: %w", err)
		}
		return store, nil
	case config.PersistencePostgres:
		pgCfg := cfg.Persistence.Postgres
		pgCfg.Password = secrets.ResolveOptional(ctx, pgCfg.Password)
		store, err := counter.NewPostgresStore(pgCfg)
		if err != nil {
			return nil, fmt.Errorf("init postgres counter store: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

// newBroker assembles the provider chain from credential presence: a
// provider with no resolvable key stays out of the chain without error.
func newBroker(
	ctx context.Context,
	cfg *config.Config,
	secrets *secret.Resolver,
	respCache cache.Cache,
	obs *observability.Manager,
	logger *slog.Logger,
) (*ytkmcp.Client, error) {
	opts := []ytkmcp.Option{
		ytkmcp.WithLogger(logger),
		ytkmcp.WithCache(respCache),
		ytkmcp.WithCallbacks(obs.Callbacks),
		ytkmcp.WithTracer(obs.Tracing.Tracer()),
		ytkmcp.WithGuardConfig(cfg.Callers),
	}
	if cfg.Providers.Window > 0 {
		opts = append(opts, ytkmcp.WithTrackerConfig(ratelimit.Config{Window: cfg.Providers.Window}))
	}

	overrides := map[string]config.ProviderConfig{
		"gemini":    cfg.Providers.Gemini,
		"openai":    cfg.Providers.OpenAI,
		"anthropic": cfg.Providers.Anthropic,
		"bedrock":   cfg.Providers.Bedrock,
	}

	registered := 0
	for _, desc := range providers.DefaultDescriptors() {
		override := overrides[desc.Name]
		if override.Disabled {
			continue
		}

		pCfg := provider.Config{
			Name:    desc.Name,
			BaseURL: override.BaseURL,
			Model:   override.Model,
			Region:  override.Region,
			Timeout: override.Timeout,
		}

		if desc.Name == "bedrock" {
			if !awsCredentialsPresent() {
				continue
			}
		} else {
			key := secrets.ResolveOptional(ctx, override.APIKey)
			if key == "" {
				continue
			}
			pCfg.APIKey = key
		}

		if override.Priority > 0 {
			desc.Priority = override.Priority
		}
		if override.Timeout > 0 {
			desc.Timeout = override.Timeout
		}
		if override.RequestLimit > 0 {
			desc.RequestLimitPerWindow = override.RequestLimit
		}
		if override.SizeLimit > 0 {
			desc.SizeUnitLimitPerWindow = override.SizeLimit
		}
		if override.Model != "" {
			desc.DefaultModel = override.Model
		}

		opts = append(opts, ytkmcp.WithProviderConfig(desc, pCfg))
		registered++
	}

	if registered == 0 {
		return nil, fmt.Errorf("no generation provider has a credential; set GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, or AWS credentials")
	}
	return ytkmcp.New(opts...)
}

func awsCredentialsPresent() bool {
	return os.Getenv("AWS_ACCESS_KEY_ID") != "" ||
		os.Getenv("AWS_PROFILE") != "" ||
		os.Getenv("AWS_WEB_IDENTITY_TOKEN_FILE") != ""
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
