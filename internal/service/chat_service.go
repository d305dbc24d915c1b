package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatctx/internal/ai"
	"github.com/xxxsen/chatctx/internal/model"
	appErr "github.com/xxxsen/chatctx/internal/pkg/errors"
	"github.com/xxxsen/chatctx/internal/pkg/timeutil"
)

type ChatServiceConfig struct {
	DefaultModel string
	DefaultAgent string
	// HistoryTail is the number of preceding turns replayed to the generator.
	HistoryTail int
}

// ChatService drives one exchange: log the user turn, mirror it, optionally
// pick context, generate, log the reply and mirror it. Only log writes and
// generation can fail the call; index work degrades to warnings.
type ChatService struct {
	chats      ChatStore
	log        *MessageLog
	index      *SemanticIndex
	selector   *ContextSelector
	reconciler *IndexReconciler
	responder  Responder
	cfg        ChatServiceConfig
}

func NewChatService(chats ChatStore, log *MessageLog, index *SemanticIndex, selector *ContextSelector, reconciler *IndexReconciler, responder Responder, cfg ChatServiceConfig) *ChatService {
	if cfg.DefaultAgent == "" {
		cfg.DefaultAgent = ai.AgentAssistant
	}
	return &ChatService{
		chats:      chats,
		log:        log,
		index:      index,
		selector:   selector,
		reconciler: reconciler,
		responder:  responder,
		cfg:        cfg,
	}
}

type CreateResult struct {
	Chat     *model.Chat      `json:"chat"`
	Messages []*model.Message `json:"messages"`
	Warnings []Warning        `json:"warnings"`
}

type SendResult struct {
	UserMessage      *model.Message `json:"user_message"`
	AssistantMessage *model.Message `json:"assistant_message"`
	ContextCount     int            `json:"context_count"`
	Warnings         []Warning      `json:"warnings"`
}

type ChatDetail struct {
	Chat     *model.Chat     `json:"chat"`
	Messages []model.Message `json:"messages"`
}

type DeleteResult struct {
	ChatID          string    `json:"chat_id"`
	MessagesDeleted int64     `json:"messages_deleted"`
	Warnings        []Warning `json:"warnings"`
}

// CreateChat opens a chat whose title is the first user message.
func (s *ChatService) CreateChat(ctx context.Context, userID, title, modelName, agent string) (*CreateResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, appErr.ErrUnauthorized
	}
	if strings.TrimSpace(title) == "" {
		return nil, appErr.Invalid("title is required")
	}
	agent = strings.ToLower(strings.TrimSpace(agent))
	if agent == "" {
		agent = s.cfg.DefaultAgent
	}
	if !ai.IsKnownAgent(agent) {
		return nil, appErr.Invalid("unknown agent %q", agent)
	}
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = s.cfg.DefaultModel
	}
	chatID := newID()
	first, err := buildMessage(chatID, model.SenderUser, title, "")
	if err != nil {
		return nil, err
	}
	chat := &model.Chat{
		ID:     chatID,
		UserID: userID,
		Title:  strings.TrimSpace(title),
		Model:  modelName,
		Agent:  agent,
		Ctime:  first.Ctime,
		Mtime:  first.Ctime,
	}
	if err := s.chats.CreateWithMessage(ctx, chat, first); err != nil {
		return nil, err
	}
	var warns warnings
	err = s.index.Upsert(ctx, chat.ID, first.ID, first.Content, first.Sender,
		model.UserTurnMeta{Model: chat.Model, Agent: chat.Agent}, first.Ctime)
	warns.add(ctx, StageIndexUserMessage, err, zap.String("chat_id", chat.ID))
	logutil.GetLogger(ctx).Info("chat created", zap.String("chat_id", chat.ID), zap.String("user_id", userID))
	return &CreateResult{Chat: chat, Messages: []*model.Message{first}, Warnings: warns.list()}, nil
}

// SendMessage appends content to the chat and returns the generated reply.
// When generation fails the user message stays logged, the partial result is
// returned together with an ErrDependency error.
func (s *ChatService) SendMessage(ctx context.Context, chatID, userID, content string, enableContext bool) (*SendResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, appErr.Invalid("message content is empty")
	}
	chat, err := s.chats.GetByID(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("chat_id", chat.ID))

	userMsg, err := s.log.Append(ctx, chat.ID, model.SenderUser, content, "")
	if err != nil {
		return nil, err
	}
	var warns warnings
	err = s.index.Upsert(ctx, chat.ID, userMsg.ID, userMsg.Content, userMsg.Sender,
		model.UserTurnMeta{Model: chat.Model, Agent: chat.Agent}, userMsg.Ctime)
	warns.add(ctx, StageIndexUserMessage, err, zap.String("chat_id", chat.ID))

	res := &SendResult{UserMessage: userMsg}
	req := &ai.ChatRequest{Agent: chat.Agent, Model: chat.Model, Content: content}
	if enableContext {
		selected, err := s.selector.Select(ctx, ContextQuery{
			ChatID:           chat.ID,
			Text:             content,
			ExcludeMessageID: userMsg.ID,
		})
		warns.add(ctx, StageContextFetch, err, zap.String("chat_id", chat.ID))
		if err == nil {
			req.Context = selected.Items
			res.ContextCount = selected.Count()
		}
	}
	if s.cfg.HistoryTail > 0 {
		history, err := s.log.Tail(ctx, chat.ID, s.cfg.HistoryTail, userMsg.Seq)
		warns.add(ctx, StageHistoryFetch, err, zap.String("chat_id", chat.ID))
		req.History = history
	}

	reply, err := s.responder.Respond(ctx, req)
	if err != nil {
		res.Warnings = warns.list()
		return res, appErr.Dependency("generate reply", err)
	}
	assistantMsg, err := s.log.Append(ctx, chat.ID, model.SenderAssistant, reply.Text, reply.Model)
	if err != nil {
		res.Warnings = warns.list()
		return res, err
	}
	res.AssistantMessage = assistantMsg
	err = s.index.Upsert(ctx, chat.ID, assistantMsg.ID, assistantMsg.Content, assistantMsg.Sender,
		model.AssistantTurnMeta{ModelUsed: reply.Model, ContextEnabled: enableContext, ContextCount: res.ContextCount},
		assistantMsg.Ctime)
	warns.add(ctx, StageIndexAssistantMessage, err, zap.String("chat_id", chat.ID))
	res.Warnings = warns.list()
	logger.Debug("message exchanged",
		zap.Int64("user_seq", userMsg.Seq),
		zap.Int64("assistant_seq", assistantMsg.Seq),
		zap.Int("context_count", res.ContextCount),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

// GetContextForQuery exposes the selector to the chat owner.
func (s *ChatService) GetContextForQuery(ctx context.Context, chatID, userID, query string, limit int) (*model.ContextResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, appErr.Invalid("query text is empty")
	}
	if _, err := s.chats.GetByID(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.selector.Select(ctx, ContextQuery{ChatID: chatID, Text: query, Limit: limit})
}

func (s *ChatService) GetChat(ctx context.Context, chatID, userID string) (*ChatDetail, error) {
	chat, err := s.chats.GetByID(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.log.ListByChat(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	return &ChatDetail{Chat: chat, Messages: msgs}, nil
}

func (s *ChatService) RenameChat(ctx context.Context, chatID, userID, title string) (*model.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, appErr.Invalid("title is required")
	}
	if err := s.chats.UpdateTitle(ctx, userID, chatID, title, timeutil.NowUnixMilli()); err != nil {
		return nil, err
	}
	return s.chats.GetByID(ctx, userID, chatID)
}

// ListChatsForUser returns chat summaries, most recent first.
func (s *ChatService) ListChatsForUser(ctx context.Context, userID string) ([]model.ChatSummary, error) {
	chats, err := s.chats.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]model.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		out = append(out, model.ChatSummary{ID: chat.ID, Title: chat.Title})
	}
	return out, nil
}

// DeleteChat removes the chat and its log in one transaction, then drops the
// index collection. An index failure after the log delete is a warning.
func (s *ChatService) DeleteChat(ctx context.Context, chatID, userID string) (*DeleteResult, error) {
	deleted, err := s.chats.DeleteWithMessages(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	var warns warnings
	warns.add(ctx, StageIndexDelete, s.index.DeleteCollection(ctx, chatID), zap.String("chat_id", chatID))
	logutil.GetLogger(ctx).Info("chat deleted", zap.String("chat_id", chatID), zap.Int64("messages", deleted))
	return &DeleteResult{ChatID: chatID, MessagesDeleted: deleted, Warnings: warns.list()}, nil
}

// RebuildIndex re-derives the chat's index from its log.
func (s *ChatService) RebuildIndex(ctx context.Context, chatID, userID string) (*RebuildResult, error) {
	chat, err := s.chats.GetByID(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	return s.reconciler.RebuildChat(ctx, chat)
}
