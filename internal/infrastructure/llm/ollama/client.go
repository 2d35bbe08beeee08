package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/counsel-rag/internal/core/ports"
)

// Task prefixes the nomic-style embedding models are trained with. Indexing
// and query sides must differ or retrieval quality degrades.
const (
	indexingPrefix = "search_document: "
	queryPrefix    = "search_query: "
)

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
}

func New(baseURL, chatModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 300 * time.Second},
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// EmbedBatch returns one vector per input text, in input order. The service
// is called once per text; any failure aborts the whole batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, mode ports.EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prefix, err := taskPrefix(mode)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		request := map[string]any{
			"model":  e.client.embedModel,
			"prompt": prefix + text,
		}
		var response struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := e.client.postJSON(ctx, "/api/embeddings", request, &response, "embed"); err != nil {
			return nil, err
		}
		if len(response.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding result")
		}
		vectors = append(vectors, response.Embedding)
	}
	return vectors, nil
}

func taskPrefix(mode ports.EmbedMode) (string, error) {
	switch mode {
	case ports.EmbedModeIndexing:
		return indexingPrefix, nil
	case ports.EmbedModeQuery:
		return queryPrefix, nil
	default:
		return "", fmt.Errorf("unknown embed mode: %q", mode)
	}
}
