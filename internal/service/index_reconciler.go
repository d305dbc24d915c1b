package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatctx/internal/embedcache"
	"github.com/xxxsen/chatctx/internal/model"
	appErr "github.com/xxxsen/chatctx/internal/pkg/errors"
)

type RebuildResult struct {
	ChatID   string    `json:"chat_id"`
	Messages int       `json:"messages"`
	Indexed  int       `json:"indexed"`
	Warnings []Warning `json:"warnings"`
}

type ReconcileResult struct {
	ChatID   string `json:"chat_id"`
	Upserted int    `json:"upserted"`
	Removed  int    `json:"removed"`
	Failed   int    `json:"failed"`
}

type ReconcileSummary struct {
	Chats              int `json:"chats"`
	Upserted           int `json:"upserted"`
	Removed            int `json:"removed"`
	Failed             int `json:"failed"`
	DroppedCollections int `json:"dropped_collections"`
}

// IndexReconciler brings the semantic index back in line with the log.
type IndexReconciler struct {
	chats ChatStore
	log   *MessageLog
	index *SemanticIndex
}

func NewIndexReconciler(chats ChatStore, log *MessageLog, index *SemanticIndex) *IndexReconciler {
	return &IndexReconciler{chats: chats, log: log, index: index}
}

// RebuildChat drops the chat's collection and indexes every logged message
// again. Metadata of entries that existed before is kept. Messages logged
// while the rebuild runs are picked up by a second read of the log.
func (r *IndexReconciler) RebuildChat(ctx context.Context, chat *model.Chat) (*RebuildResult, error) {
	msgs, err := r.log.ListByChat(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	var warns warnings
	previous := map[string]model.IndexMeta{}
	entries, err := r.index.ListEntries(ctx, chat.ID)
	warns.add(ctx, StageIndexRebuild, err, zap.String("chat_id", chat.ID))
	for _, entry := range entries {
		previous[entry.MessageID] = entry.Meta
	}
	if err := r.index.DeleteCollection(ctx, chat.ID); err != nil {
		return nil, err
	}
	res := &RebuildResult{ChatID: chat.ID}
	seen := make(map[string]struct{}, len(msgs))
	index := func(batch []model.Message) {
		for _, msg := range batch {
			if _, ok := seen[msg.ID]; ok {
				continue
			}
			seen[msg.ID] = struct{}{}
			res.Messages++
			meta := metaFor(chat, &msg, previous[msg.ID])
			if err := r.index.Upsert(ctx, chat.ID, msg.ID, msg.Content, msg.Sender, meta, msg.Ctime); err != nil {
				warns.add(ctx, StageIndexRebuild, fmt.Errorf("message %s: %w", msg.ID, err), zap.String("chat_id", chat.ID))
				continue
			}
			res.Indexed++
		}
	}
	index(msgs)
	latest, err := r.log.ListByChat(ctx, chat.ID)
	warns.add(ctx, StageIndexRebuild, err, zap.String("chat_id", chat.ID))
	index(latest)
	res.Warnings = warns.list()
	logutil.GetLogger(ctx).Info("index rebuilt",
		zap.String("chat_id", chat.ID), zap.Int("messages", res.Messages), zap.Int("indexed", res.Indexed))
	return res, nil
}

// Reconcile upserts missing or stale entries and removes dangling ones
// without dropping the collection. Entries are read before the log so a
// message written in between is never taken for a dangling entry.
func (r *IndexReconciler) Reconcile(ctx context.Context, chat *model.Chat) (*ReconcileResult, error) {
	entries, err := r.index.ListEntries(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	msgs, err := r.log.ListByChat(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	indexed := make(map[string]model.IndexEntry, len(entries))
	for _, entry := range entries {
		indexed[entry.MessageID] = entry
	}
	res := &ReconcileResult{ChatID: chat.ID}
	logged := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		logged[msg.ID] = struct{}{}
		hash := embedcache.ContentHash(msg.Content)
		entry, ok := indexed[msg.ID]
		if ok && entry.ContentHash == hash {
			continue
		}
		previous := entry.Meta
		if !ok {
			// the writer may have indexed it after the entry snapshot
			current, found, err := r.index.Entry(ctx, chat.ID, msg.ID)
			if err == nil && found {
				if current.ContentHash == hash {
					continue
				}
				previous = current.Meta
			}
		}
		meta := metaFor(chat, &msg, previous)
		if err := r.index.Upsert(ctx, chat.ID, msg.ID, msg.Content, msg.Sender, meta, msg.Ctime); err != nil {
			logutil.GetLogger(ctx).Warn("reconcile upsert failed",
				zap.String("chat_id", chat.ID), zap.String("message_id", msg.ID), zap.Error(err))
			res.Failed++
			continue
		}
		res.Upserted++
	}
	candidates := make([]string, 0)
	for _, entry := range entries {
		if _, ok := logged[entry.MessageID]; !ok {
			candidates = append(candidates, entry.MessageID)
		}
	}
	dangling, err := r.confirmDangling(ctx, chat.ID, candidates)
	if err != nil {
		return nil, err
	}
	for _, id := range dangling {
		logutil.GetLogger(ctx).Warn("remove dangling index entry",
			zap.Error(appErr.Consistency(chat.ID, id)))
	}
	removed, err := r.index.DeleteEntries(ctx, chat.ID, dangling)
	if err != nil {
		return nil, err
	}
	res.Removed = int(removed)
	return res, nil
}

// confirmDangling keeps only the ids the log still does not know about.
func (r *IndexReconciler) confirmDangling(ctx context.Context, chatID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return ids, nil
	}
	found, err := r.log.ListByIDs(ctx, chatID, ids)
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{}, len(found))
	for _, msg := range found {
		present[msg.ID] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// ReconcileAll reconciles every chat and drops collections whose chat is
// gone. Collections are listed before chats, and each orphan is checked
// against the chat store again before it is dropped.
func (r *IndexReconciler) ReconcileAll(ctx context.Context) (*ReconcileSummary, error) {
	collections, err := r.index.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := r.chats.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	sum := &ReconcileSummary{}
	live := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		live[id] = struct{}{}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		chat, err := r.chats.Find(ctx, id)
		if err != nil {
			if appErr.IsNotFound(err) {
				continue
			}
			return sum, err
		}
		res, err := r.Reconcile(ctx, chat)
		if err != nil {
			logutil.GetLogger(ctx).Warn("reconcile chat failed", zap.String("chat_id", id), zap.Error(err))
			sum.Failed++
			continue
		}
		sum.Chats++
		sum.Upserted += res.Upserted
		sum.Removed += res.Removed
		sum.Failed += res.Failed
	}
	for _, id := range collections {
		if _, ok := live[id]; ok {
			continue
		}
		exists, err := r.chats.Exists(ctx, id)
		if err != nil {
			logutil.GetLogger(ctx).Warn("check orphan collection failed", zap.String("chat_id", id), zap.Error(err))
			continue
		}
		if exists {
			continue
		}
		if err := r.index.DeleteCollection(ctx, id); err != nil {
			logutil.GetLogger(ctx).Warn("drop orphan collection failed", zap.String("chat_id", id), zap.Error(err))
			continue
		}
		sum.DroppedCollections++
	}
	return sum, nil
}

// metaFor keeps previous metadata when it still fits the sender and
// otherwise derives it from the chat and the message.
func metaFor(chat *model.Chat, msg *model.Message, previous model.IndexMeta) model.IndexMeta {
	if previous != nil && model.CheckIndexMeta(msg.Sender, previous) == nil {
		return previous
	}
	if msg.Sender == model.SenderAssistant {
		return model.AssistantTurnMeta{ModelUsed: msg.ModelUsed}
	}
	return model.UserTurnMeta{Model: chat.Model, Agent: chat.Agent}
}
