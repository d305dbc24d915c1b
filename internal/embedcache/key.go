package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/xxxsen/chatctx/internal/model"
)

func ContentHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

func buildCacheKey(modelName, taskType, text string) model.EmbeddingCacheKey {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	return model.EmbeddingCacheKey{
		ModelName:   modelName,
		TaskType:    taskType,
		ContentHash: ContentHash(text),
	}
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
