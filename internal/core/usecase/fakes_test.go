package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/kirillkom/counsel-rag/internal/core/domain"
	"github.com/kirillkom/counsel-rag/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type statusChange struct {
	status domain.DocumentStatus
	errMsg string
}

type fakeDocumentRepo struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	statuses  map[string][]statusChange
	pageCount map[string]int
	deleted   []string

	getErr    error
	updateErr error
	createErr error
}

func newFakeDocumentRepo(docs ...*domain.Document) *fakeDocumentRepo {
	r := &fakeDocumentRepo{
		docs:      map[string]*domain.Document{},
		statuses:  map[string][]statusChange{},
		pageCount: map[string]int{},
	}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *fakeDocumentRepo) Create(_ context.Context, doc *domain.Document) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}

func (r *fakeDocumentRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("document %s", id))
	}
	copied := *doc
	return &copied, nil
}

func (r *fakeDocumentRepo) ListByCase(_ context.Context, caseID string) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var docs []domain.Document
	for _, d := range r.docs {
		if d.CaseID == caseID {
			docs = append(docs, *d)
		}
	}
	return docs, nil
}

func (r *fakeDocumentRepo) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = append(r.statuses[id], statusChange{status: status, errMsg: errMessage})
	if doc, ok := r.docs[id]; ok {
		doc.Status = status
		doc.Error = errMessage
	}
	return nil
}

func (r *fakeDocumentRepo) SetPageCount(_ context.Context, id string, pageCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pageCount[id] = pageCount
	return nil
}

func (r *fakeDocumentRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return domain.WrapError(domain.ErrNotFound, "delete document", fmt.Errorf("document %s", id))
	}
	delete(r.docs, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeDocumentRepo) lastStatus(id string) (statusChange, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changes := r.statuses[id]
	if len(changes) == 0 {
		return statusChange{}, false
	}
	return changes[len(changes)-1], true
}

type fakeCaseRepo struct {
	cases map[string]*domain.Case
}

func newFakeCaseRepo(cases ...*domain.Case) *fakeCaseRepo {
	r := &fakeCaseRepo{cases: map[string]*domain.Case{}}
	for _, c := range cases {
		r.cases[c.ID] = c
	}
	return r
}

func (r *fakeCaseRepo) Create(_ context.Context, c *domain.Case) error {
	r.cases[c.ID] = c
	return nil
}

func (r *fakeCaseRepo) GetByID(_ context.Context, id string) (*domain.Case, error) {
	c, ok := r.cases[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get case", fmt.Errorf("case %s", id))
	}
	return c, nil
}

func (r *fakeCaseRepo) List(_ context.Context) ([]domain.Case, error) {
	var cases []domain.Case
	for _, c := range r.cases {
		cases = append(cases, *c)
	}
	return cases, nil
}

type fakeStorage struct {
	saved   map[string][]byte
	removed []string
	saveErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{saved: map[string][]byte{}}
}

func (s *fakeStorage) Save(_ context.Context, key string, data io.Reader) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.saved[key] = raw
	return nil
}

func (s *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := s.saved[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *fakeStorage) Remove(_ context.Context, key string) error {
	delete(s.saved, key)
	s.removed = append(s.removed, key)
	return nil
}

type fakeQueue struct {
	published  []string
	publishErr error
}

func (q *fakeQueue) PublishDocumentUploaded(_ context.Context, documentID string) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, documentID)
	return nil
}

func (q *fakeQueue) SubscribeDocumentUploaded(_ context.Context, _ func(context.Context, string) error) error {
	return nil
}

type fakeExtractor struct {
	pages []domain.PageText
	err   error
	paths []string
}

func (e *fakeExtractor) ExtractPages(_ context.Context, storagePath string) ([]domain.PageText, error) {
	e.paths = append(e.paths, storagePath)
	if e.err != nil {
		return nil, e.err
	}
	return e.pages, nil
}

type fakeChunker struct {
	chunks []domain.Chunk
}

func (c *fakeChunker) Split(_ []domain.PageText) []domain.Chunk {
	return c.chunks
}

type fakeEmbedder struct {
	vectors [][]float32
	err     error
	texts   []string
	modes   []ports.EmbedMode
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string, mode ports.EmbedMode) ([][]float32, error) {
	e.texts = append(e.texts, texts...)
	e.modes = append(e.modes, mode)
	if e.err != nil {
		return nil, e.err
	}
	if e.vectors != nil {
		return e.vectors, nil
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{float32(i)}
	}
	return vectors, nil
}

type upsertCall struct {
	caseID, documentID, documentName string
	chunks                           []domain.Chunk
	vectors                          [][]float32
}

type fakeVectorIndex struct {
	upserts   []upsertCall
	deleted   []string
	results   []domain.RetrievedChunk
	searchErr error
	upsertErr error
	deleteErr error

	searchCase string
	searchTopK int
}

func (v *fakeVectorIndex) EnsureCollection(_ context.Context) error { return nil }

func (v *fakeVectorIndex) UpsertChunks(_ context.Context, caseID, documentID, documentName string, chunks []domain.Chunk, vectors [][]float32) error {
	if v.upsertErr != nil {
		return v.upsertErr
	}
	v.upserts = append(v.upserts, upsertCall{
		caseID: caseID, documentID: documentID, documentName: documentName,
		chunks: chunks, vectors: vectors,
	})
	return nil
}

func (v *fakeVectorIndex) Search(_ context.Context, caseID string, _ []float32, topK int) ([]domain.RetrievedChunk, error) {
	v.searchCase = caseID
	v.searchTopK = topK
	if v.searchErr != nil {
		return nil, v.searchErr
	}
	return v.results, nil
}

func (v *fakeVectorIndex) DeleteByDocument(_ context.Context, documentID string) error {
	if v.deleteErr != nil {
		return v.deleteErr
	}
	v.deleted = append(v.deleted, documentID)
	return nil
}

type fakeGenerator struct {
	tokens    []string
	streamErr error
	streamFn  func(ctx context.Context, onToken ports.TokenFunc) error

	generated   string
	generateErr error

	messages []domain.ChatTurn
	prompts  []string
}

func (g *fakeGenerator) StreamChat(ctx context.Context, messages []domain.ChatTurn, onToken ports.TokenFunc) error {
	g.messages = messages
	if g.streamFn != nil {
		return g.streamFn(ctx, onToken)
	}
	for _, tok := range g.tokens {
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return g.streamErr
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.generateErr != nil {
		return "", g.generateErr
	}
	return g.generated, nil
}

type fakeConversationRepo struct {
	conversations map[string]*domain.Conversation
	messages      map[string][]domain.Message
	titleErr      error
}

func newFakeConversationRepo(convs ...*domain.Conversation) *fakeConversationRepo {
	r := &fakeConversationRepo{
		conversations: map[string]*domain.Conversation{},
		messages:      map[string][]domain.Message{},
	}
	for _, c := range convs {
		r.conversations[c.ID] = c
	}
	return r
}

func (r *fakeConversationRepo) Create(_ context.Context, conv *domain.Conversation) error {
	r.conversations[conv.ID] = conv
	return nil
}

func (r *fakeConversationRepo) GetByID(_ context.Context, id string) (*domain.Conversation, error) {
	conv, ok := r.conversations[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get conversation", fmt.Errorf("conversation %s", id))
	}
	return conv, nil
}

func (r *fakeConversationRepo) ListByCase(_ context.Context, caseID string) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	for _, c := range r.conversations {
		if c.CaseID == caseID {
			convs = append(convs, *c)
		}
	}
	return convs, nil
}

func (r *fakeConversationRepo) UpdateTitle(_ context.Context, id, title string) error {
	if r.titleErr != nil {
		return r.titleErr
	}
	conv, ok := r.conversations[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update conversation title", fmt.Errorf("conversation %s", id))
	}
	conv.Title = title
	return nil
}

func (r *fakeConversationRepo) AppendMessage(_ context.Context, msg *domain.Message) error {
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], *msg)
	return nil
}

func (r *fakeConversationRepo) ListMessages(_ context.Context, conversationID string) ([]domain.Message, error) {
	return r.messages[conversationID], nil
}

func (r *fakeConversationRepo) CountMessages(_ context.Context, conversationID string) (int, error) {
	return len(r.messages[conversationID]), nil
}
