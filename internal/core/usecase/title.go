package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/counsel-rag/internal/core/ports"
)

const titlePrompt = `Write a short title (at most 6 words) for a legal research conversation that starts with this question. Reply with the title only, no quotes.

Question: %s`

const titleFallbackRunes = 60

// AutoTitleUseCase rewrites a conversation title from its first question.
// Best effort: any failure falls back to the truncated question, and a
// failure to persist is only logged.
type AutoTitleUseCase struct {
	conversations ports.ConversationRepository
	generator     ports.Generator
	log           *slog.Logger
}

func NewAutoTitleUseCase(conversations ports.ConversationRepository, generator ports.Generator, log *slog.Logger) *AutoTitleUseCase {
	return &AutoTitleUseCase{conversations: conversations, generator: generator, log: log}
}

func (u *AutoTitleUseCase) TitleConversation(ctx context.Context, conversationID, firstQuestion string) {
	title, err := u.generator.Generate(ctx, fmt.Sprintf(titlePrompt, firstQuestion))
	if err != nil || strings.TrimSpace(title) == "" {
		if err != nil {
			u.log.Warn("title generation failed", "conversation_id", conversationID, "error", err)
		}
		title = fallbackTitle(firstQuestion)
	}
	title = strings.TrimSpace(strings.Trim(strings.TrimSpace(title), `"`))
	if title == "" {
		return
	}
	if err := u.conversations.UpdateTitle(ctx, conversationID, title); err != nil {
		u.log.Warn("title update failed", "conversation_id", conversationID, "error", err)
	}
}

func fallbackTitle(question string) string {
	runes := []rune(strings.TrimSpace(question))
	if len(runes) <= titleFallbackRunes {
		return string(runes)
	}
	return string(runes[:titleFallbackRunes])
}
