package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Chative-insight/server/internal/agent/datasource"
	"github.com/Chative-insight/server/internal/agent/graph"
	"github.com/Chative-insight/server/internal/agent/llm"
	"github.com/Chative-insight/server/internal/agent/memory"
	"github.com/Chative-insight/server/internal/agent/model"
	"github.com/Chative-insight/server/internal/agent/repo"
	"github.com/Chative-insight/server/internal/agent/search"
	"github.com/Chative-insight/server/internal/api"
	"github.com/Chative-insight/server/internal/core"
	logx "github.com/Chative-insight/server/pkg/logger"
	pkgredis "github.com/Chative-insight/server/pkg/redis"
	pkgsqlite "github.com/Chative-insight/server/pkg/sqlite"
)

// AppConfig defines all configurable parameters of the server,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis  pkgredis.Config
	SQLite pkgsqlite.Config `envconfig:"DATABASE"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Router   model.RouterModelConfig
	SQL      model.SQLModelConfig
	Response model.ResponseModelConfig
	Memory   model.MemoryConfig
	Agent    model.AgentConfig
	Database model.DatabaseConfig
	Search   model.SearchConfig
	HTTP     model.HTTPConfig
}

func main() {
	// Load .env file
	envErr := godotenv.Load(".env")

	// Load structured config from env
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Init()
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})
	if envErr != nil {
		logx.Warn().Err(envErr).Msg("Could not load .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logx.Fatal().Err(err).Msg("Server stopped with error")
	}
	logx.Info().Msg("Server stopped")
}

func run(ctx context.Context, cfg AppConfig) error {
	db, err := cfg.SQLite.New()
	if err != nil {
		return err
	}
	defer db.Close()
	logx.Info().Str("path", cfg.SQLite.Path).Bool("read_only", cfg.SQLite.ReadOnly).Msg("Connected to database")

	executor := datasource.NewSQLiteExecutor(db, cfg.Database)

	completers, err := llm.NewGeminiCompleters(ctx, llm.ChatModelConfig{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		RouterConfig:   &cfg.Router,
		SQLConfig:      &cfg.SQL,
		ResponseConfig: &cfg.Response,
		CallTimeout:    cfg.Agent.CallTimeout,
	})
	if err != nil {
		return err
	}

	memOpts := []memory.Option{
		memory.WithSummarizer(memory.NewCompletionSummarizer(completers.Response, cfg.Memory.SummaryTurnChars)),
	}
	if cfg.Memory.Persist {
		if cfg.Redis.URL == "" {
			return errors.New("MEMORY_PERSIST requires REDIS_URL")
		}
		rdb, err := cfg.Redis.New()
		if err != nil {
			return err
		}
		defer rdb.Close()
		logx.Info().Dur("ttl", cfg.Memory.TTL).Msg("Session memory persisted to Redis")
		memOpts = append(memOpts, memory.WithRepository(repo.NewRedisSessionRepository(rdb, cfg.Memory.TTL)))
	}
	mem := memory.New(cfg.Memory, memOpts...)

	searcher := search.NewMulti(search.NewCatalog(executor))
	if cfg.Search.WebEnabled && strings.TrimSpace(cfg.Search.SearXNGURL) != "" {
		searcher.Register(search.NewSearXNG(cfg.Search.SearXNGURL, cfg.Agent.CallTimeout))
	}
	logx.Info().Strs("providers", searcher.Providers()).Msg("Knowledge search ready")

	orchestrator, err := graph.BuildOrchestrator(ctx, graph.Config{
		Completers: completers,
		Executor:   executor,
		Schema:     datasource.NewStaticSchema(),
		Catalog:    executor,
		Searcher:   searcher,
		Agent:      cfg.Agent,
	}, mem)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.HTTP.Address, orchestrator, executor, cfg.HTTP.CORSOrigins)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logx.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logx.Warn().Err(serr).Msg("HTTP shutdown failed")
	}
	if cerr := orchestrator.Close(shutdownCtx); cerr != nil {
		logx.Warn().Err(cerr).Msg("Failed to flush session memory")
	}
	return err
}
