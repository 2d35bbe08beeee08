package domain

// RetrievedChunk is one case-scoped similarity search hit with its stored
// payload fields.
type RetrievedChunk struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	PageNumbers  []int   `json:"page_numbers"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
}

// SnippetLimit bounds the citation snippet taken from a retrieved chunk.
const SnippetLimit = 300

type Citation struct {
	SourceIndex  int    `json:"source_index"`
	DocumentName string `json:"document_name"`
	PageNumbers  []int  `json:"page_numbers"`
	Snippet      string `json:"snippet"`
}

type StreamEventType string

const (
	EventToken StreamEventType = "token"
	EventDone  StreamEventType = "done"
)

// StreamEvent is one frame of the answer stream. Token events carry an
// incremental content fragment; the done event carries the full content and
// the citation list and is always last.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Content   string          `json:"content"`
	Citations []Citation      `json:"citations,omitempty"`
}

// StreamResult is the terminal outcome of one streamed answer, returned to
// the caller directly so it never has to re-parse emitted frames.
type StreamResult struct {
	Content   string
	Citations []Citation
	Sources   int
}

// ChatTurn is one prior exchange line forwarded to the generation service.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
