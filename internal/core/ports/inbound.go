package ports

import (
	"context"

	"github.com/kirillkom/counsel-rag/internal/core/domain"
)

// FileUpload is one multipart part handed to the upload orchestration,
// already read into memory so the PDF magic and size cap can be checked
// before anything is stored.
type FileUpload struct {
	Filename string
	Content  []byte
}

// DocumentUploader is the inbound contract for document upload orchestration.
type DocumentUploader interface {
	Upload(ctx context.Context, caseID string, files []FileUpload) ([]domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous ingestion of a
// single uploaded document.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentRemover deletes a document together with its stored file and
// vector records.
type DocumentRemover interface {
	Remove(ctx context.Context, caseID, documentID string) error
}

// EmitFunc delivers one stream event to the single consumer of an answer
// stream. A non-nil error means the consumer is gone; emission stops but
// the streamer still completes and returns its terminal result.
type EmitFunc func(domain.StreamEvent) error

// AnswerStreamer is the inbound contract for retrieval-augmented answering.
type AnswerStreamer interface {
	StreamAnswer(ctx context.Context, caseID, question string, history []domain.ChatTurn, emit EmitFunc) (*domain.StreamResult, error)
}

// ConversationTitler rewrites a conversation title after its first
// exchange. Best effort: implementations never fail the calling request.
type ConversationTitler interface {
	TitleConversation(ctx context.Context, conversationID, firstQuestion string)
}
