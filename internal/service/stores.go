package service

import (
	"context"

	"github.com/xxxsen/chatctx/internal/ai"
	"github.com/xxxsen/chatctx/internal/model"
)

// ChatStore is implemented by repo.ChatRepo and memstore.Store.
type ChatStore interface {
	CreateWithMessage(ctx context.Context, chat *model.Chat, first *model.Message) error
	GetByID(ctx context.Context, userID, chatID string) (*model.Chat, error)
	Find(ctx context.Context, chatID string) (*model.Chat, error)
	Exists(ctx context.Context, chatID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]model.Chat, error)
	ListIDs(ctx context.Context) ([]string, error)
	UpdateTitle(ctx context.Context, userID, chatID, title string, mtime int64) error
	// DeleteWithMessages removes the chat row and its log in one transaction.
	DeleteWithMessages(ctx context.Context, userID, chatID string) (int64, error)
}

// MessageStore is implemented by repo.MessageRepo and memstore.Store.
type MessageStore interface {
	Append(ctx context.Context, msg *model.Message) error
	ListByChat(ctx context.Context, chatID string) ([]model.Message, error)
	ListByIDs(ctx context.Context, chatID string, ids []string) ([]model.Message, error)
}

// VectorStore is implemented by repo.MessageEmbeddingRepo and memstore.VectorStore.
type VectorStore interface {
	// EnsureCollection creates the chat's collection and fixes its vector
	// dimension. An existing collection is left as is.
	EnsureCollection(ctx context.Context, chatID, modelName string, dimension int, now int64) error
	// CollectionDimension reports the dimension fixed at creation; ok is
	// false when the chat has no collection.
	CollectionDimension(ctx context.Context, chatID string) (dimension int, ok bool, err error)
	ListCollections(ctx context.Context) ([]string, error)
	DropCollection(ctx context.Context, chatID string) error
	Upsert(ctx context.Context, entry *model.IndexEntry) error
	// GetEntry returns the stored entry without its vector.
	GetEntry(ctx context.Context, chatID, messageID string) (*model.IndexEntry, bool, error)
	UpdateMeta(ctx context.Context, chatID, messageID string, meta model.IndexMeta, mtime int64) error
	Search(ctx context.Context, chatID string, query []float32, k int) ([]model.IndexHit, error)
	ListEntries(ctx context.Context, chatID string) ([]model.IndexEntry, error)
	DeleteEntries(ctx context.Context, chatID string, messageIDs []string) (int64, error)
}

type Responder interface {
	Respond(ctx context.Context, req *ai.ChatRequest) (*ai.Reply, error)
}
