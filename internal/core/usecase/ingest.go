package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/counsel-rag/internal/core/domain"
	"github.com/kirillkom/counsel-rag/internal/core/ports"
)

// IngestDocumentUseCase drives one document through the ingestion state
// machine: pending -> processing -> completed|failed. Every failure is
// isolated to the document being processed; the caller decides whether to
// keep consuming.
type IngestDocumentUseCase struct {
	documents ports.DocumentRepository
	extractor ports.PageExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	vectors   ports.VectorIndex
	log       *slog.Logger
}

func NewIngestDocumentUseCase(
	documents ports.DocumentRepository,
	extractor ports.PageExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	log *slog.Logger,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		documents: documents,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		vectors:   vectors,
		log:       log,
	}
}

func (u *IngestDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := u.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	// Committed before extraction so status polling reflects that work
	// has started.
	if err := u.documents.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return err
	}

	pages, err := u.extractor.ExtractPages(ctx, doc.StoragePath)
	if err != nil {
		return u.fail(ctx, documentID, fmt.Errorf("extract pages: %w", err))
	}
	if err := u.documents.SetPageCount(ctx, documentID, len(pages)); err != nil {
		return u.fail(ctx, documentID, err)
	}
	if len(pages) == 0 {
		u.log.Info("document has no extractable text", "document_id", documentID)
		return u.complete(ctx, documentID)
	}

	chunks := u.chunker.Split(pages)
	if len(chunks) == 0 {
		u.log.Info("document produced no chunks", "document_id", documentID)
		return u.complete(ctx, documentID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := u.embedder.EmbedBatch(ctx, texts, ports.EmbedModeIndexing)
	if err != nil {
		return u.fail(ctx, documentID, fmt.Errorf("embed chunks: %w", err))
	}
	if len(vectors) != len(chunks) {
		return u.fail(ctx, documentID,
			fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	// Drop any points from a previous run of the same document before
	// writing the new ones.
	if err := u.vectors.DeleteByDocument(ctx, documentID); err != nil {
		return u.fail(ctx, documentID, fmt.Errorf("clear previous vectors: %w", err))
	}
	if err := u.vectors.UpsertChunks(ctx, doc.CaseID, doc.ID, doc.Filename, chunks, vectors); err != nil {
		return u.fail(ctx, documentID, fmt.Errorf("upsert vectors: %w", err))
	}

	u.log.Info("document ingested",
		"document_id", documentID, "pages", len(pages), "chunks", len(chunks))
	return u.complete(ctx, documentID)
}

func (u *IngestDocumentUseCase) complete(ctx context.Context, documentID string) error {
	return u.documents.UpdateStatus(ctx, documentID, domain.StatusCompleted, "")
}

// fail records the failure on the document and returns the original cause.
// The status write uses a detached context so a processing deadline that
// caused the failure cannot also prevent recording it.
func (u *IngestDocumentUseCase) fail(ctx context.Context, documentID string, cause error) error {
	msg := domain.TruncateErrorMessage(cause.Error())
	if err := u.documents.UpdateStatus(context.WithoutCancel(ctx), documentID, domain.StatusFailed, msg); err != nil {
		u.log.Error("failed to record document failure", "document_id", documentID, "error", err)
	}
	u.log.Error("document ingestion failed", "document_id", documentID, "error", cause)
	return cause
}
