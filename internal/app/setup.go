package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/acmecorp/supportbot/db"
	"github.com/acmecorp/supportbot/internal/chat"
	"github.com/acmecorp/supportbot/internal/config"
	"github.com/acmecorp/supportbot/internal/store"
	"github.com/acmecorp/supportbot/internal/tools"
)

// Upstream model calls are throttled with a shared token bucket so a chat
// turn and a background compaction cannot together exceed the provider quota.
const (
	upstreamRate  rate.Limit = 10
	upstreamBurst            = 30
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	if err := a.provideStores(ctx); err != nil {
		return nil, err
	}

	if cfg.SeedDemoData {
		if err := store.Seed(ctx, a.Orders, logger); err != nil {
			return nil, fmt.Errorf("seeding demo orders: %w", err)
		}
	}

	dispatcher := tools.NewDispatcher(a.Orders, logger)
	registered := tools.Register(g, dispatcher)

	limiter := rate.NewLimiter(upstreamRate, upstreamBurst)

	compactor, err := chat.NewCompactor(chat.CompactorConfig{
		Genkit:      g,
		Sessions:    a.Sessions,
		Logger:      logger,
		ModelName:   cfg.FullSummarizeModelName(),
		Window:      cfg.CompactionWindow,
		Chunk:       cfg.CompactionChunk,
		RateLimiter: limiter,
	})
	if err != nil {
		return nil, fmt.Errorf("creating compactor: %w", err)
	}

	// Compaction runs fire-and-forget after each turn, so it hangs off the
	// app lifecycle rather than the request context.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	a.bgCancel = bgCancel

	engine, err := chat.New(chat.Config{
		Genkit:        g,
		Sessions:      a.Sessions,
		Dispatcher:    dispatcher,
		Logger:        logger,
		Tools:         registered,
		ModelName:     cfg.FullModelName(),
		RateLimiter:   limiter,
		Compactor:     compactor,
		BackgroundCtx: bgCtx,
		WG:            &a.wg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat engine: %w", err)
	}
	a.Engine = engine

	return a, nil
}

// provideStores selects the storage backend from config. Postgres mode runs
// migrations and builds a connection pool; memory mode keeps everything
// in-process and loses state on restart.
func (a *App) provideStores(ctx context.Context) error {
	if a.Config.Storage == config.StorageMemory {
		a.Orders = store.NewMemoryOrders()
		a.Sessions = store.NewMemorySessions()
		a.Logger.Info("using in-memory storage")
		return nil
	}

	pool, cleanup, err := provideDBPool(ctx, a.Config)
	if err != nil {
		return err
	}
	a.Pool = pool
	a.dbCleanup = cleanup
	a.Orders = store.NewOrders(pool, a.Logger)
	a.Sessions = store.NewSessions(pool, a.Logger)
	return nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		if cfg.SummarizeModel != "" && cfg.SummarizeModel != cfg.ModelName {
			ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
				Name: cfg.SummarizeModel,
				Type: "chat",
			}, nil)
		}
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
// Pool is configured with sensible defaults for connection management.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}
