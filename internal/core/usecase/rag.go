package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/counsel-rag/internal/core/domain"
	"github.com/kirillkom/counsel-rag/internal/core/ports"
)

const noContextAnswer = "No relevant documents found for this case. Please upload documents first."

const systemPromptTemplate = `You are an AI legal research assistant. Answer the user's question based ONLY on the provided source documents. Follow these rules strictly:

1. Only use information from the sources below. If the sources don't contain relevant information, say so.
2. Cite your sources using [Source N] notation inline where N corresponds to the source number.
3. Be precise and thorough in your analysis.
4. Use professional legal language appropriate for an attorney audience.

SOURCES:
%s

Remember: cite every factual claim with [Source N]. Do not fabricate information.`

var sourceRefPattern = regexp.MustCompile(`\[Source (\d+)\]`)

// RAGStreamUseCase answers a question from the case's indexed documents,
// pushing incremental events through emit and returning the terminal
// result directly.
type RAGStreamUseCase struct {
	embedder      ports.Embedder
	vectors       ports.VectorIndex
	generator     ports.Generator
	topK          int
	historyWindow int
	log           *slog.Logger
}

func NewRAGStreamUseCase(
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	generator ports.Generator,
	topK int,
	historyWindow int,
	log *slog.Logger,
) *RAGStreamUseCase {
	if topK <= 0 {
		topK = 10
	}
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &RAGStreamUseCase{
		embedder:      embedder,
		vectors:       vectors,
		generator:     generator,
		topK:          topK,
		historyWindow: historyWindow,
		log:           log,
	}
}

func (u *RAGStreamUseCase) StreamAnswer(
	ctx context.Context,
	caseID, question string,
	history []domain.ChatTurn,
	emit ports.EmitFunc,
) (*domain.StreamResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "stream answer", fmt.Errorf("empty question"))
	}

	queryVectors, err := u.embedder.EmbedBatch(ctx, []string{question}, ports.EmbedModeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(queryVectors) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors for one text", len(queryVectors))
	}

	chunks, err := u.vectors.Search(ctx, caseID, queryVectors[0], u.topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	if len(chunks) == 0 {
		u.log.Info("no context retrieved", "case_id", caseID)
		result := &domain.StreamResult{Content: noContextAnswer, Citations: []domain.Citation{}}
		u.tryEmit(emit, domain.StreamEvent{Type: domain.EventToken, Content: noContextAnswer})
		u.tryEmit(emit, domain.StreamEvent{Type: domain.EventDone, Content: noContextAnswer, Citations: result.Citations})
		return result, nil
	}

	messages := make([]domain.ChatTurn, 0, len(history)+2)
	messages = append(messages, domain.ChatTurn{
		Role:    "system",
		Content: fmt.Sprintf(systemPromptTemplate, buildSourcesText(chunks)),
	})
	if n := len(history); n > u.historyWindow {
		history = history[n-u.historyWindow:]
	}
	messages = append(messages, history...)
	messages = append(messages, domain.ChatTurn{Role: domain.RoleUser, Content: question})

	var full strings.Builder
	emitFailed := false
	err = u.generator.StreamChat(ctx, messages, func(token string) error {
		full.WriteString(token)
		if !emitFailed {
			if emitErr := emit(domain.StreamEvent{Type: domain.EventToken, Content: token}); emitErr != nil {
				// The consumer is gone; keep accumulating so the answer
				// can still be persisted.
				emitFailed = true
				u.log.Warn("stream consumer gone", "case_id", caseID, "error", emitErr)
			}
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && full.Len() > 0 {
			// The caller went away mid-generation and took the model
			// request down with it. Keep what was produced so the
			// handler can still persist the partial answer.
			content := full.String()
			u.log.Warn("generation cut short, keeping partial answer",
				"case_id", caseID, "error", err)
			return &domain.StreamResult{
				Content:   content,
				Citations: extractCitations(content, chunks),
				Sources:   len(chunks),
			}, nil
		}
		return nil, fmt.Errorf("stream chat: %w", err)
	}

	content := full.String()
	citations := extractCitations(content, chunks)
	if !emitFailed {
		u.tryEmit(emit, domain.StreamEvent{Type: domain.EventDone, Content: content, Citations: citations})
	}

	return &domain.StreamResult{Content: content, Citations: citations, Sources: len(chunks)}, nil
}

func (u *RAGStreamUseCase) tryEmit(emit ports.EmitFunc, ev domain.StreamEvent) {
	if err := emit(ev); err != nil {
		u.log.Warn("stream emit failed", "event_type", string(ev.Type), "error", err)
	}
}

// buildSourcesText renders the retrieved chunks as numbered sources, the
// numbering the model is told to cite.
func buildSourcesText(chunks []domain.RetrievedChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		pages := make([]string, len(c.PageNumbers))
		for j, p := range c.PageNumbers {
			pages[j] = strconv.Itoa(p)
		}
		parts[i] = fmt.Sprintf("[Source %d] (Document: %s, Pages: %s)\n%s",
			i+1, c.DocumentName, strings.Join(pages, ", "), c.Text)
	}
	return strings.Join(parts, "\n\n")
}

// extractCitations parses [Source N] references out of the completed
// answer. References are deduplicated, ordered and bound to the retrieved
// chunk set; out-of-range numbers are dropped.
func extractCitations(content string, chunks []domain.RetrievedChunk) []domain.Citation {
	seen := map[int]bool{}
	refs := []int{}
	for _, m := range sourceRefPattern.FindAllStringSubmatch(content, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		refs = append(refs, n)
	}
	sort.Ints(refs)

	citations := []domain.Citation{}
	for _, ref := range refs {
		if ref < 1 || ref > len(chunks) {
			continue
		}
		chunk := chunks[ref-1]
		citations = append(citations, domain.Citation{
			SourceIndex:  ref,
			DocumentName: chunk.DocumentName,
			PageNumbers:  chunk.PageNumbers,
			Snippet:      snippet(chunk.Text),
		})
	}
	return citations
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) > domain.SnippetLimit {
		return string(runes[:domain.SnippetLimit])
	}
	return text
}
