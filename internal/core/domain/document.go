package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// ErrorMessageLimit bounds the failure text persisted on a document.
const ErrorMessageLimit = 500

type Document struct {
	ID          string         `json:"id"`
	CaseID      string         `json:"case_id"`
	Filename    string         `json:"filename"`
	StoragePath string         `json:"storage_path"`
	FileSize    int64          `json:"file_size"`
	PageCount   *int           `json:"page_count,omitempty"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error_message,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// PageText is one extracted page of a source document. Page numbers are
// one-based; only pages with non-blank text are produced.
type PageText struct {
	Page int
	Text string
}

// Chunk is the unit of embedding and retrieval. It exists only for the
// duration of one ingestion run and is never persisted as a row.
type Chunk struct {
	Text        string
	PageNumbers []int
	Index       int
}

func TruncateErrorMessage(msg string) string {
	if len(msg) > ErrorMessageLimit {
		return msg[:ErrorMessageLimit]
	}
	return msg
}
