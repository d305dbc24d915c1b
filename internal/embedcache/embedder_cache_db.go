package embedcache

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatctx/internal/ai"
	"github.com/xxxsen/chatctx/internal/model"
	"github.com/xxxsen/chatctx/internal/pkg/timeutil"
)

// Store is satisfied by repo.EmbeddingCacheRepo.
type Store interface {
	Get(ctx context.Context, key model.EmbeddingCacheKey) ([]float32, bool, error)
	Put(ctx context.Context, key model.EmbeddingCacheKey, embedding []float32, ctime int64) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, store Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store Store
}

// Embed treats the cache as optional: read and write failures are logged and
// the call falls through to the wrapped embedder.
func (d *dbEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := buildCacheKey(d.next.ModelName(), taskType, text)
	values, ok, err := d.store.Get(ctx, key)
	if err != nil {
		logutil.GetLogger(ctx).Warn("read embedding cache failed", zap.String("model", key.ModelName), zap.Error(err))
	}
	if ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)", zap.String("task_type", taskType))
		return values, nil
	}
	res, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := d.store.Put(ctx, key, res, timeutil.NowUnix()); err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
	}
	return res, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}
