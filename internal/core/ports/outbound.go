package ports

import (
	"context"
	"io"

	"github.com/kirillkom/counsel-rag/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByCase(ctx context.Context, caseID string) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetPageCount(ctx context.Context, id string, pageCount int) error
	Delete(ctx context.Context, id string) error
}

// CaseRepository persists tenant-scoping cases.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	List(ctx context.Context) ([]domain.Case, error)
}

// ConversationRepository persists conversations and their transcript.
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	ListByCase(ctx context.Context, caseID string) ([]domain.Conversation, error)
	UpdateTitle(ctx context.Context, id, title string) error
	AppendMessage(ctx context.Context, msg *domain.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, documentID string) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// PageExtractor extracts per-page text from a stored document. Pages whose
// text is blank are omitted.
type PageExtractor interface {
	ExtractPages(ctx context.Context, storagePath string) ([]domain.PageText, error)
}

// Chunker splits extracted pages into overlapping chunks with page
// provenance.
type Chunker interface {
	Split(pages []domain.PageText) []domain.Chunk
}

// EmbedMode selects the instruction prefix an embedding model expects for a
// given side of retrieval.
type EmbedMode string

const (
	EmbedModeIndexing EmbedMode = "indexing"
	EmbedModeQuery    EmbedMode = "query"
)

// Embedder builds vectors for chunk texts and query text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)
}

// VectorIndex is the external similarity index. Search is always scoped to
// one case and must never return another case's records.
type VectorIndex interface {
	EnsureCollection(ctx context.Context) error
	UpsertChunks(ctx context.Context, caseID, documentID, documentName string, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, caseID string, queryVector []float32, topK int) ([]domain.RetrievedChunk, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// TokenFunc receives one incremental content fragment of a generation
// stream.
type TokenFunc func(token string) error

// Generator is the external generation service.
type Generator interface {
	StreamChat(ctx context.Context, messages []domain.ChatTurn, onToken TokenFunc) error
	Generate(ctx context.Context, prompt string) (string, error)
}
