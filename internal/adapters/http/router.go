package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/counsel-rag/internal/core/domain"
	"github.com/kirillkom/counsel-rag/internal/core/ports"
	"github.com/kirillkom/counsel-rag/internal/observability/metrics"
)

type Router struct {
	uploader      ports.DocumentUploader
	remover       ports.DocumentRemover
	streamer      ports.AnswerStreamer
	titler        ports.ConversationTitler
	cases         ports.CaseRepository
	documents     ports.DocumentRepository
	conversations ports.ConversationRepository

	httpMetrics *metrics.HTTPServerMetrics
	log         *slog.Logger

	maxBodyBytes int64
	rateRPS      float64
	rateBurst    int
	maxInFlight  int
}

type RouterOptions struct {
	Uploader      ports.DocumentUploader
	Remover       ports.DocumentRemover
	Streamer      ports.AnswerStreamer
	Titler        ports.ConversationTitler
	Cases         ports.CaseRepository
	Documents     ports.DocumentRepository
	Conversations ports.ConversationRepository

	Metrics *metrics.HTTPServerMetrics
	Log     *slog.Logger

	MaxBodyBytes int64
	RateRPS      float64
	RateBurst    int
	MaxInFlight  int
}

func NewRouter(opts RouterOptions) *Router {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 20
	}
	return &Router{
		uploader:      opts.Uploader,
		remover:       opts.Remover,
		streamer:      opts.Streamer,
		titler:        opts.Titler,
		cases:         opts.Cases,
		documents:     opts.Documents,
		conversations: opts.Conversations,
		httpMetrics:   opts.Metrics,
		log:           opts.Log,
		maxBodyBytes:  opts.MaxBodyBytes,
		rateRPS:       opts.RateRPS,
		rateBurst:     opts.RateBurst,
		maxInFlight:   opts.MaxInFlight,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.httpMetrics != nil {
		mux.Handle("GET /metrics", rt.httpMetrics.Handler())
	}

	mux.HandleFunc("POST /v1/cases", rt.createCase)
	mux.HandleFunc("GET /v1/cases", rt.listCases)
	mux.HandleFunc("GET /v1/cases/{caseID}", rt.getCase)

	mux.HandleFunc("POST /v1/cases/{caseID}/documents", rt.uploadDocuments)
	mux.HandleFunc("GET /v1/cases/{caseID}/documents", rt.listDocuments)
	mux.HandleFunc("DELETE /v1/cases/{caseID}/documents/{documentID}", rt.deleteDocument)
	mux.HandleFunc("GET /v1/documents/{documentID}", rt.getDocument)

	mux.HandleFunc("POST /v1/cases/{caseID}/conversations", rt.createConversation)
	mux.HandleFunc("GET /v1/cases/{caseID}/conversations", rt.listConversations)
	mux.HandleFunc("GET /v1/conversations/{conversationID}/messages", rt.listMessages)
	mux.HandleFunc("POST /v1/conversations/{conversationID}/messages", rt.postMessage)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, time.Second)
	handler = rateLimitMiddleware(handler, rt.rateRPS, rt.rateBurst)
	if rt.httpMetrics != nil {
		handler = rt.httpMetrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(rt.log, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createCase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	c := domain.Case{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: time.Now().UTC(),
	}
	if err := rt.cases.Create(r.Context(), &c); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (rt *Router) listCases(w http.ResponseWriter, r *http.Request) {
	cases, err := rt.cases.List(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if cases == nil {
		cases = []domain.Case{}
	}
	writeJSON(w, http.StatusOK, cases)
}

func (rt *Router) getCase(w http.ResponseWriter, r *http.Request) {
	c, err := rt.cases.GetByID(r.Context(), r.PathValue("caseID"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxBodyBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'files' is required"})
		return
	}

	files := make([]ports.FileUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable multipart part"})
			return
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable multipart part"})
			return
		}
		files = append(files, ports.FileUpload{Filename: fh.Filename, Content: content})
	}

	docs, err := rt.uploader.Upload(r.Context(), r.PathValue("caseID"), files)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, docs)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("caseID")
	if _, err := rt.cases.GetByID(r.Context(), caseID); err != nil {
		rt.writeError(w, r, err)
		return
	}
	docs, err := rt.documents.ListByCase(r.Context(), caseID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.documents.GetByID(r.Context(), r.PathValue("documentID"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	err := rt.remover.Remove(r.Context(), r.PathValue("caseID"), r.PathValue("documentID"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) createConversation(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("caseID")
	if _, err := rt.cases.GetByID(r.Context(), caseID); err != nil {
		rt.writeError(w, r, err)
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New Conversation"
	}

	conv := domain.Conversation{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if err := rt.conversations.Create(r.Context(), &conv); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (rt *Router) listConversations(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("caseID")
	if _, err := rt.cases.GetByID(r.Context(), caseID); err != nil {
		rt.writeError(w, r, err)
		return
	}
	convs, err := rt.conversations.ListByCase(r.Context(), caseID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (rt *Router) listMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversationID")
	if _, err := rt.conversations.GetByID(r.Context(), conversationID); err != nil {
		rt.writeError(w, r, err)
		return
	}
	msgs, err := rt.conversations.ListMessages(r.Context(), conversationID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// postMessage appends the user turn, streams the answer as SSE and persists
// the assistant turn once the stream has a terminal result. Persistence and
// titling run on a detached context so a client disconnect mid-stream still
// leaves a durable transcript.
func (rt *Router) postMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	conversationID := r.PathValue("conversationID")

	conv, err := rt.conversations.GetByID(r.Context(), conversationID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	question := strings.TrimSpace(req.Content)
	if question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	userMsg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        question,
		CreatedAt:      time.Now().UTC(),
	}
	if err := rt.conversations.AppendMessage(r.Context(), &userMsg); err != nil {
		rt.writeError(w, r, err)
		return
	}

	history, err := rt.historyBefore(r.Context(), conversationID, userMsg.ID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	result, err := rt.streamer.StreamAnswer(r.Context(), conv.CaseID, question, history, sse.WriteEvent)
	if err != nil {
		// Headers are sent; the absent done frame tells the client the
		// stream failed.
		rt.log.Error("answer stream failed",
			"request_id", requestIDFromContext(r.Context()),
			"conversation_id", conversationID, "error", err)
		return
	}

	persistCtx := context.WithoutCancel(r.Context())
	assistantMsg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        result.Content,
		Citations:      result.Citations,
		CreatedAt:      time.Now().UTC(),
	}
	if err := rt.conversations.AppendMessage(persistCtx, &assistantMsg); err != nil {
		rt.log.Error("failed to persist assistant message",
			"conversation_id", conversationID, "error", err)
	}

	if rt.httpMetrics != nil {
		rt.httpMetrics.RecordRAGObservation("api", "conversation_messages", result.Sources, time.Since(start))
	}

	if count, err := rt.conversations.CountMessages(persistCtx, conversationID); err == nil && count == 2 {
		rt.titler.TitleConversation(persistCtx, conversationID, question)
	}
}

func (rt *Router) historyBefore(ctx context.Context, conversationID, excludeID string) ([]domain.ChatTurn, error) {
	msgs, err := rt.conversations.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history := make([]domain.ChatTurn, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == excludeID {
			continue
		}
		history = append(history, domain.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		rt.log.Error("request failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
