package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatctx/internal/ai"
	"github.com/xxxsen/chatctx/internal/embedcache"
	"github.com/xxxsen/chatctx/internal/model"
	appErr "github.com/xxxsen/chatctx/internal/pkg/errors"
	"github.com/xxxsen/chatctx/internal/pkg/timeutil"
)

const defaultIndexTimeout = 3 * time.Second

// ErrDimensionMismatch marks a vector whose length differs from its
// collection's. It is always wrapped as a dependency failure.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// SemanticIndex mirrors log messages into per-chat vector collections. It is
// derived state: every failure is reported as ErrDependency and callers on
// write paths downgrade it to a warning.
type SemanticIndex struct {
	store    VectorStore
	embedder ai.IEmbedder
	timeout  time.Duration
}

func NewSemanticIndex(store VectorStore, embedder ai.IEmbedder, timeout time.Duration) *SemanticIndex {
	if timeout <= 0 {
		timeout = defaultIndexTimeout
	}
	return &SemanticIndex{store: store, embedder: embedder, timeout: timeout}
}

func (x *SemanticIndex) ModelName() string {
	if x.embedder == nil {
		return ""
	}
	return x.embedder.ModelName()
}

// Upsert embeds content and stores it under (chatID, messageID). The
// collection is created on first use and keeps the dimension of its first
// vector. Content whose hash matches the stored entry is not embedded again;
// only changed metadata is written.
func (x *SemanticIndex) Upsert(ctx context.Context, chatID, messageID, content string, sender model.Sender, meta model.IndexMeta, ctime int64) error {
	if err := model.CheckIndexMeta(sender, meta); err != nil {
		return appErr.Invalid("%v", err)
	}
	if x.embedder == nil {
		return appErr.Dependency("index upsert", ai.ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	logger := logutil.GetLogger(ctx).With(zap.String("chat_id", chatID), zap.String("message_id", messageID))

	hash := embedcache.ContentHash(content)
	existing, ok, err := x.store.GetEntry(ctx, chatID, messageID)
	if err != nil {
		return appErr.Dependency("index lookup", err)
	}
	if ok && existing.ContentHash == hash {
		if existing.Meta == meta {
			logger.Debug("index entry unchanged, skip embedding")
			return nil
		}
		if err := x.store.UpdateMeta(ctx, chatID, messageID, meta, timeutil.NowUnix()); err != nil {
			return appErr.Dependency("index update meta", err)
		}
		logger.Debug("index entry metadata refreshed")
		return nil
	}
	vec, err := x.embedder.Embed(ctx, embeddingText(content), ai.TaskTypeRetrievalDocument)
	if err != nil {
		return appErr.Dependency("index embed", err)
	}
	if len(vec) == 0 {
		return appErr.Dependency("index embed", fmt.Errorf("empty embedding from %s", x.embedder.ModelName()))
	}
	now := timeutil.NowUnix()
	if err := x.store.EnsureCollection(ctx, chatID, x.embedder.ModelName(), len(vec), now); err != nil {
		return appErr.Dependency("index ensure collection", err)
	}
	if err := x.checkDimension(ctx, chatID, len(vec)); err != nil {
		return err
	}
	entry := &model.IndexEntry{
		ChatID:      chatID,
		MessageID:   messageID,
		Sender:      sender,
		Content:     content,
		Embedding:   vec,
		Meta:        meta,
		ContentHash: hash,
		MsgCtime:    ctime,
		Mtime:       now,
	}
	if err := x.store.Upsert(ctx, entry); err != nil {
		return appErr.Dependency("index upsert", err)
	}
	return nil
}

// checkDimension rejects a vector whose length differs from the one the
// collection was created with, as happens when a fallback embedder of another
// size answers.
func (x *SemanticIndex) checkDimension(ctx context.Context, chatID string, got int) error {
	want, ok, err := x.store.CollectionDimension(ctx, chatID)
	if err != nil {
		return appErr.Dependency("index collection dimension", err)
	}
	if ok && want > 0 && want != got {
		return appErr.Dependency("index dimension",
			fmt.Errorf("%w: collection %s has %d, embedder %s produced %d", ErrDimensionMismatch, chatID, want, x.embedder.ModelName(), got))
	}
	return nil
}

// Query returns up to k nearest entries of the chat. A chat that was never
// indexed has no collection and yields an empty result.
func (x *SemanticIndex) Query(ctx context.Context, chatID, text string, k int) ([]model.IndexHit, error) {
	if k <= 0 {
		return []model.IndexHit{}, nil
	}
	if x.embedder == nil {
		return nil, appErr.Dependency("index query", ai.ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	_, has, err := x.store.CollectionDimension(ctx, chatID)
	if err != nil {
		return nil, appErr.Dependency("index query", err)
	}
	if !has {
		return []model.IndexHit{}, nil
	}
	vec, err := x.embedder.Embed(ctx, embeddingText(text), ai.TaskTypeRetrievalQuery)
	if err != nil {
		return nil, appErr.Dependency("index embed query", err)
	}
	if err := x.checkDimension(ctx, chatID, len(vec)); err != nil {
		return nil, err
	}
	hits, err := x.store.Search(ctx, chatID, vec, k)
	if err != nil {
		return nil, appErr.Dependency("index search", err)
	}
	return hits, nil
}

// DeleteCollection is idempotent.
func (x *SemanticIndex) DeleteCollection(ctx context.Context, chatID string) error {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	return appErr.Dependency("index delete collection", x.store.DropCollection(ctx, chatID))
}

func (x *SemanticIndex) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	ids, err := x.store.ListCollections(ctx)
	if err != nil {
		return nil, appErr.Dependency("index list collections", err)
	}
	return ids, nil
}

func (x *SemanticIndex) ListEntries(ctx context.Context, chatID string) ([]model.IndexEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	entries, err := x.store.ListEntries(ctx, chatID)
	if err != nil {
		return nil, appErr.Dependency("index list entries", err)
	}
	return entries, nil
}

// Entry returns the stored entry without its embedding.
func (x *SemanticIndex) Entry(ctx context.Context, chatID, messageID string) (*model.IndexEntry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	entry, ok, err := x.store.GetEntry(ctx, chatID, messageID)
	if err != nil {
		return nil, false, appErr.Dependency("index get entry", err)
	}
	return entry, ok, nil
}

func (x *SemanticIndex) DeleteEntries(ctx context.Context, chatID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	n, err := x.store.DeleteEntries(ctx, chatID, messageIDs)
	if err != nil {
		return 0, appErr.Dependency("index delete entries", err)
	}
	return n, nil
}

func embeddingText(content string) string {
	if text := ai.PlainText(content); text != "" {
		return text
	}
	return content
}
