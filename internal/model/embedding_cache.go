package model

// EmbeddingCacheKey identifies a cached vector: the same text embedded by the
// same model for the same task always yields the same vector.
type EmbeddingCacheKey struct {
	ModelName   string `json:"model_name"`
	TaskType    string `json:"task_type"`
	ContentHash string `json:"content_hash"`
}

func (k EmbeddingCacheKey) String() string {
	return "embed:" + k.ModelName + ":" + k.TaskType + ":" + k.ContentHash
}
