package embedcache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatctx/internal/ai"
	"github.com/xxxsen/chatctx/internal/model"
)

// Stats reports cache effectiveness since the wrapper was built.
type Stats struct {
	Hits   int64
	Misses int64
	Len    int
}

// LruEmbedder keeps recently computed vectors in process memory. Query
// vectors repeat whenever a user re-asks, document vectors repeat on rebuild.
type LruEmbedder struct {
	next   ai.IEmbedder
	cache  *expirable.LRU[model.EmbeddingCacheKey, []float32]
	hits   atomic.Int64
	misses atomic.Int64
}

// WrapLruCacheToEmbedder returns e unchanged when caching is disabled by a
// non-positive size or ttl.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return NewLruEmbedder(e, size, ttl)
}

func NewLruEmbedder(e ai.IEmbedder, size int, ttl time.Duration) *LruEmbedder {
	return &LruEmbedder{
		next:  e,
		cache: expirable.NewLRU[model.EmbeddingCacheKey, []float32](size, nil, ttl),
	}
}

func (l *LruEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := buildCacheKey(l.next.ModelName(), taskType, text)
	if cached, ok := l.cache.Get(key); ok {
		l.hits.Add(1)
		return cloneEmbedding(cached), nil
	}
	l.misses.Add(1)
	res, err := l.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		logutil.GetLogger(ctx).Debug("skip caching empty embedding", zap.String("task_type", taskType))
		return res, nil
	}
	l.cache.Add(key, cloneEmbedding(res))
	return res, nil
}

func (l *LruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func (l *LruEmbedder) Stats() Stats {
	return Stats{Hits: l.hits.Load(), Misses: l.misses.Load(), Len: l.cache.Len()}
}
