package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/counsel-rag/internal/core/domain"
)

func pendingDoc() *domain.Document {
	return &domain.Document{
		ID:          "doc-1",
		CaseID:      "case-1",
		Filename:    "lease.pdf",
		StoragePath: "case-1/doc-1.pdf",
		Status:      domain.StatusPending,
	}
}

func TestProcessByIDCompletesAndUpserts(t *testing.T) {
	repo := newFakeDocumentRepo(pendingDoc())
	extractor := &fakeExtractor{pages: []domain.PageText{{Page: 1, Text: "The lease term is five years."}}}
	chunker := &fakeChunker{chunks: []domain.Chunk{
		{Text: "The lease term is five years.", PageNumbers: []int{1}, Index: 0},
	}}
	embedder := &fakeEmbedder{}
	vectors := &fakeVectorIndex{}

	uc := NewIngestDocumentUseCase(repo, extractor, chunker, embedder, vectors, testLogger())
	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	changes := repo.statuses["doc-1"]
	if len(changes) != 2 || changes[0].status != domain.StatusProcessing || changes[1].status != domain.StatusCompleted {
		t.Fatalf("unexpected status transitions: %+v", changes)
	}
	if repo.pageCount["doc-1"] != 1 {
		t.Fatalf("expected page count 1, got %d", repo.pageCount["doc-1"])
	}
	if len(vectors.deleted) != 1 || vectors.deleted[0] != "doc-1" {
		t.Fatalf("expected previous vectors cleared before upsert, got %v", vectors.deleted)
	}
	if len(vectors.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(vectors.upserts))
	}
	up := vectors.upserts[0]
	if up.caseID != "case-1" || up.documentID != "doc-1" || up.documentName != "lease.pdf" {
		t.Fatalf("unexpected upsert identity: %+v", up)
	}
	if len(embedder.modes) != 1 || embedder.modes[0] != "indexing" {
		t.Fatalf("expected indexing embed mode, got %v", embedder.modes)
	}
}

func TestProcessByIDZeroPagesCompletesWithoutEmbedding(t *testing.T) {
	repo := newFakeDocumentRepo(pendingDoc())
	extractor := &fakeExtractor{pages: nil}
	embedder := &fakeEmbedder{}
	vectors := &fakeVectorIndex{}

	uc := NewIngestDocumentUseCase(repo, extractor, &fakeChunker{}, embedder, vectors, testLogger())
	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	last, ok := repo.lastStatus("doc-1")
	if !ok || last.status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %+v", last)
	}
	if repo.pageCount["doc-1"] != 0 {
		t.Fatalf("expected page count 0, got %d", repo.pageCount["doc-1"])
	}
	if len(embedder.texts) != 0 {
		t.Fatalf("embedder should not have been called, got %v", embedder.texts)
	}
	if len(vectors.upserts) != 0 || len(vectors.deleted) != 0 {
		t.Fatalf("vector index should not have been touched")
	}
}

func TestProcessByIDZeroChunksCompletes(t *testing.T) {
	repo := newFakeDocumentRepo(pendingDoc())
	extractor := &fakeExtractor{pages: []domain.PageText{{Page: 1, Text: "x"}}}

	uc := NewIngestDocumentUseCase(repo, extractor, &fakeChunker{chunks: nil}, &fakeEmbedder{}, &fakeVectorIndex{}, testLogger())
	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	last, _ := repo.lastStatus("doc-1")
	if last.status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %+v", last)
	}
}

func TestProcessByIDExtractionFailureMarksFailed(t *testing.T) {
	repo := newFakeDocumentRepo(pendingDoc())
	extractor := &fakeExtractor{err: errors.New("malformed xref table")}
	vectors := &fakeVectorIndex{}

	uc := NewIngestDocumentUseCase(repo, extractor, &fakeChunker{}, &fakeEmbedder{}, vectors, testLogger())
	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}

	last, _ := repo.lastStatus("doc-1")
	if last.status != domain.StatusFailed {
		t.Fatalf("expected failed, got %+v", last)
	}
	if !strings.Contains(last.errMsg, "malformed xref table") {
		t.Fatalf("unexpected failure message: %q", last.errMsg)
	}
	if len(vectors.upserts) != 0 {
		t.Fatalf("no vectors should be written on extraction failure")
	}
}

func TestProcessByIDEmbeddingFailureMarksFailedWithoutUpsert(t *testing.T) {
	repo := newFakeDocumentRepo(pendingDoc())
	extractor := &fakeExtractor{pages: []domain.PageText{{Page: 1, Text: "text"}}}
	chunker := &fakeChunker{chunks: []domain.Chunk{{Text: "text", PageNumbers: []int{1}}}}
	embedder := &fakeEmbedder{err: errors.New("embedding server unavailable")}
	vectors := &fakeVectorIndex{}

	uc := NewIngestDocumentUseCase(repo, extractor, chunker, embedder, vectors, testLogger())
	if err := uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatalf("expected error")
	}

	last, _ := repo.lastStatus("doc-1")
	if last.status != domain.StatusFailed {
		t.Fatalf("expected failed, got %+v", last)
	}
	if len(vectors.upserts) != 0 || len(vectors.deleted) != 0 {
		t.Fatalf("vector index should not have been touched on embed failure")
	}
}

func TestProcessByIDFailureMessageTruncated(t *testing.T) {
	repo := newFakeDocumentRepo(pendingDoc())
	extractor := &fakeExtractor{err: errors.New(strings.Repeat("x", 2*domain.ErrorMessageLimit))}

	uc := NewIngestDocumentUseCase(repo, extractor, &fakeChunker{}, &fakeEmbedder{}, &fakeVectorIndex{}, testLogger())
	if err := uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatalf("expected error")
	}

	last, _ := repo.lastStatus("doc-1")
	if len(last.errMsg) != domain.ErrorMessageLimit {
		t.Fatalf("expected message truncated to %d, got %d", domain.ErrorMessageLimit, len(last.errMsg))
	}
}

func TestProcessByIDUnknownDocument(t *testing.T) {
	repo := newFakeDocumentRepo()

	uc := NewIngestDocumentUseCase(repo, &fakeExtractor{}, &fakeChunker{}, &fakeEmbedder{}, &fakeVectorIndex{}, testLogger())
	err := uc.ProcessByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(repo.statuses["missing"]) != 0 {
		t.Fatalf("no status should be written for an unknown document")
	}
}
