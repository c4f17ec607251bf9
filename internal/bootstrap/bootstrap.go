package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/rag-pipeline/internal/config"
	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
	"github.com/kirillkom/rag-pipeline/internal/core/usecase"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/chunking"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/extractor"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/extractor/xlsx"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/llm/openai"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/queue/nats"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/rerank"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/vector/memory"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/vector/pinecone"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Index       ports.VectorIndex
	IngestUC    *usecase.IngestDocumentUseCase
	RetrievalUC *usecase.RetrievalUseCase
	AnswerUC    *usecase.AnswerUseCase

	// Set only when AsyncIngest is enabled.
	Queue      ports.MessageQueue
	ScheduleUC *usecase.ScheduleIngestionUseCase
	ProcessUC  *usecase.ProcessIngestionUseCase

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	executor := resilience.NewExecutor(resilienceConfig(cfg))

	index, err := newVectorIndex(ctx, cfg, executor)
	if err != nil {
		return nil, err
	}
	generator := newGenerator(cfg, executor)

	chunker, err := chunking.NewPageChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	extractors := extractor.NewRegistry(
		plaintext.NewExtractor(),
		pdf.NewExtractor(),
		xlsx.NewExtractor(),
	)

	ingestUC := usecase.NewIngestDocumentUseCase(extractors, chunker, index, cfg.UpsertBatchSize)
	retrievalUC := usecase.NewRetrievalUseCase(index)
	answerUC := usecase.NewAnswerUseCase(retrievalUC, generator)

	app := &App{
		Config:      cfg,
		Index:       index,
		IngestUC:    ingestUC,
		RetrievalUC: retrievalUC,
		AnswerUC:    answerUC,
	}

	if cfg.AsyncIngest {
		if err := app.initAsync(ctx, executor); err != nil {
			app.Close()
			return nil, err
		}
	}

	slog.Info("bootstrap_completed",
		"vector_backend", cfg.VectorBackend,
		"generator_backend", cfg.GeneratorBackend,
		"async_ingest", cfg.AsyncIngest,
		"extensions", extractors.Extensions(),
	)
	return app, nil
}

func (a *App) initAsync(ctx context.Context, executor *resilience.Executor) error {
	db, err := postgres.OpenDB(a.Config.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	a.closeFns = append(a.closeFns, func() { _ = db.Close() })

	repo := postgres.NewIngestionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := nats.New(a.Config.NATSURL, a.Config.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return fmt.Errorf("init message queue: %w", err)
	}
	a.closeFns = append(a.closeFns, queue.Close)

	a.Queue = queue
	a.ScheduleUC = usecase.NewScheduleIngestionUseCase(repo, queue)
	a.ProcessUC = usecase.NewProcessIngestionUseCase(repo, a.IngestUC)
	return nil
}

func newVectorIndex(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.VectorIndex, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendPinecone:
		client := pinecone.New(pinecone.Config{
			APIKey:          cfg.PineconeAPIKey,
			IndexName:       cfg.PineconeIndexName,
			Namespace:       cfg.PineconeNamespace,
			Cloud:           cfg.PineconeCloud,
			Region:          cfg.PineconeRegion,
			EmbedModel:      cfg.PineconeEmbedModel,
			RerankModel:     cfg.PineconeRerankModel,
			ControlPlaneURL: cfg.PineconeControlPlaneURL,
		}, executor)
		if cfg.VectorAutoCreate {
			if err := client.EnsureIndex(ctx); err != nil {
				return nil, fmt.Errorf("ensure pinecone index: %w", err)
			}
		}
		return client, nil
	case config.VectorBackendQdrant:
		ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, ollama.NewEmbedder(ollamaClient), rerank.NewLexical(), executor), nil
	case config.VectorBackendMemory:
		return memory.New(rerank.NewLexical()), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidConfiguration, "init vector index",
			fmt.Errorf("unknown vector backend %q", cfg.VectorBackend))
	}
}

func newGenerator(cfg config.Config, executor *resilience.Executor) ports.Generator {
	if cfg.GeneratorBackend == config.GeneratorOllama {
		return ollama.NewGenerator(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor))
	}
	return openai.NewGenerator(openai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		MaxTokens:   cfg.OpenAIMaxTokens,
		Temperature: float32(cfg.OpenAITemperature),
		Timeout:     cfg.OpenAITimeout,
	}, executor)
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.RetryInitialBackoff = cfg.RetryInitialBackoff
	out.RetryMaxBackoff = cfg.RetryMaxBackoff
	out.BreakerEnabled = cfg.BreakerEnabled
	if cfg.BreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.BreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.BreakerFailureRatio
	out.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	return out
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
