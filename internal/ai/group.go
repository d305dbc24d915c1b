package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Reply is a generated answer and the model that actually produced it.
type Reply struct {
	Text     string
	Model    string
	Provider string
}

type IGenerator interface {
	Generate(ctx context.Context, model string, prompt *Prompt) (*Reply, error)
}

// GeneratorEntry binds a provider into a fallback group. A non-empty Model
// pins the entry to that model regardless of what the chat asked for.
type GeneratorEntry struct {
	Name     string
	Provider IProvider
	Model    string
}

func (e GeneratorEntry) resolveModel(requested string) string {
	if e.Model != "" {
		return e.Model
	}
	return requested
}

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

type groupGenerator struct {
	items []GeneratorEntry
}

func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	if len(items) == 0 {
		return nil
	}
	return &groupGenerator{items: items}
}

func (g *groupGenerator) Generate(ctx context.Context, model string, prompt *Prompt) (*Reply, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Provider == nil {
			continue
		}
		use := item.resolveModel(model)
		text, err := item.Provider.Generate(ctx, use, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = fmt.Errorf("empty reply from %s", item.Provider.Name())
		}
		if err == nil {
			return &Reply{Text: text, Model: use, Provider: item.Provider.Name()}, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("generator failed", zap.Int("index", i), zap.String("name", item.Name), zap.String("model", use), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		return nil, fmt.Errorf("generator not configured")
	}
	return nil, lastErr
}

type groupEmbedder struct {
	items []EmbedderEntry
}

// NewGroupEmbedder falls back through items in order. All members should
// produce vectors of the same dimension or the stored index becomes mixed.
func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	if len(items) == 0 {
		return nil
	}
	if len(items) == 1 {
		return items[0].Embedder
	}
	return &groupEmbedder{items: items}
}

func (g *groupEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		res, err := item.Embedder.Embed(ctx, text, taskType)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("embedder failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return nil, lastErr
}

func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		names = append(names, item.Embedder.ModelName())
	}
	return strings.Join(names, "|")
}
