package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatctx/internal/ai"
	"github.com/xxxsen/chatctx/internal/config"
	"github.com/xxxsen/chatctx/internal/db"
	"github.com/xxxsen/chatctx/internal/embedcache"
	"github.com/xxxsen/chatctx/internal/job"
	"github.com/xxxsen/chatctx/internal/memstore"
	"github.com/xxxsen/chatctx/internal/repo"
	"github.com/xxxsen/chatctx/internal/schedule"
	"github.com/xxxsen/chatctx/internal/service"
)

// app holds the wired service stack shared by the server and the CLI tools.
type app struct {
	db         *sql.DB
	chats      service.ChatStore
	chatSvc    *service.ChatService
	reconciler *service.IndexReconciler
	cacheRepo  *repo.EmbeddingCacheRepo
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func buildApp(cfg *config.Config) (*app, error) {
	a := &app{}
	var (
		messages service.MessageStore
		vectors  service.VectorStore
	)
	switch cfg.Storage.Type {
	case config.StorageTypeMemory:
		store := memstore.NewStore()
		a.chats = store
		messages = store
		vectors = memstore.NewVectorStore()
	default:
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := db.ApplyMigrations(conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		a.db = conn
		messageRepo := repo.NewMessageRepo(conn)
		a.chats = repo.NewChatRepo(conn, messageRepo)
		messages = messageRepo
		vectors = repo.NewMessageEmbeddingRepo(conn)
		if cfg.EmbedCache.EnableDB {
			a.cacheRepo = repo.NewEmbeddingCacheRepo(conn)
		}
	}

	generator, err := buildGenerator(cfg.AI.Generators)
	if err != nil {
		a.Close()
		return nil, err
	}
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.cacheRepo != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, a.cacheRepo)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.EmbedCache.LRUSize, time.Duration(cfg.EmbedCache.LRUTTLMinutes)*time.Minute)

	log := service.NewMessageLog(messages)
	index := service.NewSemanticIndex(vectors, embedder, time.Duration(cfg.Index.TimeoutMs)*time.Millisecond)
	selector := service.NewContextSelector(a.chats, log, index, service.SelectorConfig{
		DefaultLimit: cfg.Index.DefaultLimit,
		MaxLimit:     cfg.Index.MaxLimit,
		MinScore:     cfg.Index.MinScore,
	})
	a.reconciler = service.NewIndexReconciler(a.chats, log, index)
	responder := ai.NewResponder(generator, time.Duration(cfg.AI.Timeout)*time.Second)
	a.chatSvc = service.NewChatService(a.chats, log, index, selector, a.reconciler, responder, service.ChatServiceConfig{
		DefaultModel: cfg.AI.DefaultModel,
		DefaultAgent: cfg.AI.DefaultAgent,
		HistoryTail:  cfg.AI.HistoryTail,
	})
	return a, nil
}

func buildGenerator(items []config.AIProviderConfig) (ai.IGenerator, error) {
	entries := make([]ai.GeneratorEntry, 0, len(items))
	for i, item := range items {
		provider, err := ai.NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init ai.generators[%d]: %w", i, err)
		}
		entries = append(entries, ai.GeneratorEntry{Name: item.Name, Provider: provider, Model: item.Model})
	}
	return ai.NewGroupGenerator(entries), nil
}

func buildEmbedder(cfg *config.Config) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfg.AI.Embedders))
	for i, item := range cfg.AI.Embedders {
		provider, err := ai.NewEmbedProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init ai.embedders[%d]: %w", i, err)
		}
		entries = append(entries, ai.EmbedderEntry{Name: item.Name, Embedder: ai.NewEmbedder(provider, item.Model)})
	}
	return ai.NewGroupEmbedder(entries), nil
}

func (a *app) scheduler(cfg *config.Config) (*schedule.CronScheduler, error) {
	sched := schedule.NewCronScheduler()
	if err := sched.AddJob(job.NewIndexReconcileJob(a.reconciler), cfg.Schedule.ReconcileSpec); err != nil {
		return nil, err
	}
	if a.cacheRepo != nil {
		if err := sched.AddJob(job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.EmbedCache.DBKeepDays), cfg.Schedule.CacheCleanupSpec); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func runReindex(ctx context.Context, cfg *config.Config, chatID string) error {
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := logutil.GetLogger(ctx)
	if chatID != "" {
		chat, err := a.chats.Find(ctx, chatID)
		if err != nil {
			return fmt.Errorf("find chat %s: %w", chatID, err)
		}
		res, err := a.reconciler.RebuildChat(ctx, chat)
		if err != nil {
			return err
		}
		logger.Info("chat index rebuilt",
			zap.String("chat_id", res.ChatID),
			zap.Int("messages", res.Messages),
			zap.Int("indexed", res.Indexed),
			zap.Int("warnings", len(res.Warnings)))
		return nil
	}
	summary, err := a.reconciler.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	logger.Info("index reconciled",
		zap.Int("chats", summary.Chats),
		zap.Int("upserted", summary.Upserted),
		zap.Int("removed", summary.Removed),
		zap.Int("failed", summary.Failed),
		zap.Int("dropped_collections", summary.DroppedCollections))
	return nil
}
