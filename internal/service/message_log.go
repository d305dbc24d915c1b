package service

import (
	"context"
	"strings"

	"github.com/xxxsen/chatctx/internal/model"
	appErr "github.com/xxxsen/chatctx/internal/pkg/errors"
	"github.com/xxxsen/chatctx/internal/pkg/timeutil"
)

// MessageLog is the authoritative, append-only record of a chat's turns.
type MessageLog struct {
	store MessageStore
}

func NewMessageLog(store MessageStore) *MessageLog {
	return &MessageLog{store: store}
}

// Append validates and stores one turn. The store assigns Seq under the chat
// row lock; a missing chat yields ErrNotFound.
func (l *MessageLog) Append(ctx context.Context, chatID string, sender model.Sender, content, modelUsed string) (*model.Message, error) {
	msg, err := buildMessage(chatID, sender, content, modelUsed)
	if err != nil {
		return nil, err
	}
	if err := l.store.Append(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (l *MessageLog) ListByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	return l.store.ListByChat(ctx, chatID)
}

func (l *MessageLog) ListByIDs(ctx context.Context, chatID string, ids []string) ([]model.Message, error) {
	if len(ids) == 0 {
		return []model.Message{}, nil
	}
	return l.store.ListByIDs(ctx, chatID, ids)
}

// Tail returns up to n messages with Seq below beforeSeq, oldest first.
func (l *MessageLog) Tail(ctx context.Context, chatID string, n int, beforeSeq int64) ([]model.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	msgs, err := l.store.ListByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	end := len(msgs)
	for end > 0 && msgs[end-1].Seq >= beforeSeq {
		end--
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	return msgs[start:end], nil
}

func buildMessage(chatID string, sender model.Sender, content, modelUsed string) (*model.Message, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, appErr.Invalid("chat id is required")
	}
	if !sender.Valid() {
		return nil, appErr.Invalid("unknown sender %q", sender)
	}
	if strings.TrimSpace(content) == "" {
		return nil, appErr.Invalid("message content is empty")
	}
	if sender == model.SenderUser && modelUsed != "" {
		return nil, appErr.Invalid("model_used is only recorded on assistant messages")
	}
	return &model.Message{
		ID:        newID(),
		ChatID:    chatID,
		Sender:    sender,
		Content:   content,
		ModelUsed: modelUsed,
		Ctime:     timeutil.NowUnixMilli(),
	}, nil
}
