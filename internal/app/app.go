package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/knowbase-io/knowbase/internal/config"
	"github.com/knowbase-io/knowbase/internal/core"
	"github.com/knowbase-io/knowbase/internal/core/chunker"
	db "github.com/knowbase-io/knowbase/internal/core/database"
	"github.com/knowbase-io/knowbase/internal/core/embedding"
	"github.com/knowbase-io/knowbase/internal/core/extract"
	"github.com/knowbase-io/knowbase/internal/core/ingest"
	"github.com/knowbase-io/knowbase/internal/core/language"
	"github.com/knowbase-io/knowbase/internal/core/llm"
	"github.com/knowbase-io/knowbase/internal/core/objectstore"
	"github.com/knowbase-io/knowbase/internal/core/search"
	"github.com/knowbase-io/knowbase/internal/core/vectorstore"
)

// App owns every long-lived component and wires them together.
type App struct {
	Cfg      *config.Config
	Log      *zap.Logger
	DB       *db.DatabaseClient
	Store    *vectorstore.Store
	Objects  core.ObjectClient
	Ingestor *ingest.Service
	Searcher *search.Engine
	LLM      core.LLMProvider
	Server   *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	dbClient, err := db.NewDatabaseClient(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	store := vectorstore.New(dbClient.DB(), log)

	provider, router, err := buildEmbeddings(ctx, cfg)
	if err != nil {
		dbClient.Close()
		return nil, err
	}

	orch := embedding.NewOrchestrator(provider, embedding.OrchestratorConfig{
		BatchSize:   cfg.EmbedBatchSize,
		MaxTokens:   cfg.EmbedMaxTokens,
		CallTimeout: cfg.EmbedTimeout,
		Retries:     cfg.EmbedRetries,
	}, log)

	// S3 is optional: without credentials the service still handles raw
	// text ingestion, just not file uploads.
	var objects core.ObjectClient
	if s3, err := objectstore.NewS3Client(ctx, cfg.AwsAccessKey, cfg.AwsSecretKey, cfg.AwsRegion, cfg.BucketName, log); err != nil {
		log.Warn("object storage disabled", zap.Error(err))
	} else {
		objects = s3
	}

	ingestor := ingest.NewService(
		dbClient,
		store,
		objects,
		extract.NewDocconvExtractor(true),
		router,
		chunker.New(log),
		orch,
		cfg.BucketName,
		cfg.IngestQueueSize,
		log,
	)

	var generator core.LLMProvider
	if cfg.GeminiAPIKey != "" {
		gen, err := llm.NewGeminiLLM(ctx, cfg.GeminiAPIKey, cfg.GenModel)
		if err != nil {
			log.Warn("generation disabled", zap.Error(err))
		} else {
			generator = gen
		}
	}

	a := &App{
		Cfg:      cfg,
		Log:      log,
		DB:       dbClient,
		Store:    store,
		Objects:  objects,
		Ingestor: ingestor,
		Searcher: search.NewEngine(store, provider, log),
		LLM:      generator,
	}
	a.Server = NewServer(a)
	return a, nil
}

func buildEmbeddings(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, *language.Router, error) {
	switch cfg.EmbedProvider {
	case "gemini":
		provider, err := embedding.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("init gemini embeddings: %w", err)
		}
		return provider, language.NewRouter(language.GeminiRoutes()), nil
	case "siliconflow":
		if cfg.EmbedAPIKey == "" {
			return nil, nil, fmt.Errorf("EMBED_API_KEY not set")
		}
		provider := embedding.NewSiliconFlowProvider(cfg.EmbedBaseURL, cfg.EmbedAPIKey, cfg.EmbedTimeout)
		return provider, language.NewRouter(nil), nil
	default:
		return nil, nil, fmt.Errorf("unknown embeddings provider %q", cfg.EmbedProvider)
	}
}

// Start launches background ingestion workers. Blocks until ctx is done.
func (a *App) Start(ctx context.Context) {
	a.Ingestor.Start(ctx, a.Cfg.IngestWorkers)
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	_ = a.Log.Sync()
}
