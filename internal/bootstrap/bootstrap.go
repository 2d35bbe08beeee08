package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/counsel-rag/internal/config"
	"github.com/kirillkom/counsel-rag/internal/core/ports"
	"github.com/kirillkom/counsel-rag/internal/core/usecase"
	"github.com/kirillkom/counsel-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/counsel-rag/internal/infrastructure/extractor/pdfpage"
	"github.com/kirillkom/counsel-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/counsel-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/counsel-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/counsel-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/counsel-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/counsel-rag/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Log    *slog.Logger

	Queue         ports.MessageQueue
	Cases         ports.CaseRepository
	Documents     ports.DocumentRepository
	Conversations ports.ConversationRepository

	UploadUC ports.DocumentUploader
	RemoveUC ports.DocumentRemover
	IngestUC ports.DocumentProcessor
	StreamUC ports.AnswerStreamer
	TitleUC  ports.ConversationTitler

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	documents := postgres.NewDocumentRepository(db)
	cases := postgres.NewCaseRepository(db)
	conversations := postgres.NewConversationRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		MaxConcurrent:      cfg.WorkerConcurrency,
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.VectorSize)
	if err := vectorIndex.EnsureCollection(ctx); err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("ensure vector collection: %w", err)
	}

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extractor := pdfpage.NewExtractor(storage)

	uploadUC := usecase.NewUploadDocumentsUseCase(cases, documents, storage, queue, cfg.MaxUploadBytes(), log)
	removeUC := usecase.NewRemoveDocumentUseCase(documents, storage, vectorIndex, log)
	ingestUC := usecase.NewIngestDocumentUseCase(documents, extractor, chunker, embedder, vectorIndex, log)
	streamUC := usecase.NewRAGStreamUseCase(embedder, vectorIndex, generator, cfg.RAGTopK, cfg.HistoryWindow, log)
	titleUC := usecase.NewAutoTitleUseCase(conversations, generator, log)

	return &App{
		Config: cfg,
		Log:    log,

		Queue:         queue,
		Cases:         cases,
		Documents:     documents,
		Conversations: conversations,

		UploadUC: uploadUC,
		RemoveUC: removeUC,
		IngestUC: ingestUC,
		StreamUC: streamUC,
		TitleUC:  titleUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
