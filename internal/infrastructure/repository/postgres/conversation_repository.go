package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/counsel-rag/internal/core/domain"
)

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversations (id, case_id, title, created_at)
VALUES ($1,$2,$3,$4)
`, conv.ID, conv.CaseID, conv.Title, conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, case_id, title, created_at FROM conversations WHERE id = $1
`, id)

	var conv domain.Conversation
	if err := row.Scan(&conv.ID, &conv.CaseID, &conv.Title, &conv.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get conversation", fmt.Errorf("conversation %s", id))
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &conv, nil
}

func (r *ConversationRepository) ListByCase(ctx context.Context, caseID string) ([]domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, case_id, title, created_at
FROM conversations
WHERE case_id = $1
ORDER BY created_at DESC
`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		if err := rows.Scan(&conv.ID, &conv.CaseID, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return convs, nil
}

func (r *ConversationRepository) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE conversations SET title = $2 WHERE id = $1
`, id, title)
	if err != nil {
		return fmt.Errorf("update conversation title: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update title rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "update conversation title", fmt.Errorf("conversation %s", id))
	}
	return nil
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	citations := msg.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO messages (id, conversation_id, role, content, citations, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, msg.ID, msg.ConversationID, msg.Role, msg.Content, citationsJSON, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, conversation_id, role, content, citations, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY created_at ASC
`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var citationsRaw []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &citationsRaw, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if err := json.Unmarshal(citationsRaw, &msg.Citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
		if msg.Citations == nil {
			msg.Citations = []domain.Citation{}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

func (r *ConversationRepository) CountMessages(ctx context.Context, conversationID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM messages WHERE conversation_id = $1
`, conversationID)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}
