package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xxxsen/chatctx/internal/model"
)

type collection struct {
	modelName string
	dimension int
	ctime     int64
	entries   map[string]model.IndexEntry
}

// VectorStore is a brute-force cosine similarity store keyed by chat.
type VectorStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewVectorStore() *VectorStore {
	return &VectorStore{collections: make(map[string]*collection)}
}

func (v *VectorStore) EnsureCollection(_ context.Context, chatID, modelName string, dimension int, now int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if col, ok := v.collections[chatID]; ok {
		if col.dimension == 0 {
			col.modelName, col.dimension = modelName, dimension
		}
		return nil
	}
	v.collections[chatID] = &collection{
		modelName: modelName,
		dimension: dimension,
		ctime:     now,
		entries:   make(map[string]model.IndexEntry),
	}
	return nil
}

func (v *VectorStore) CollectionDimension(_ context.Context, chatID string) (int, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	col, ok := v.collections[chatID]
	if !ok {
		return 0, false, nil
	}
	return col.dimension, true, nil
}

func (v *VectorStore) ListCollections(_ context.Context) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := make([]string, 0, len(v.collections))
	for id := range v.collections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (v *VectorStore) DropCollection(_ context.Context, chatID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.collections, chatID)
	return nil
}

func (v *VectorStore) Upsert(_ context.Context, entry *model.IndexEntry) error {
	if err := model.CheckIndexMeta(entry.Sender, entry.Meta); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	col, ok := v.collections[entry.ChatID]
	if !ok {
		return fmt.Errorf("collection %s does not exist", entry.ChatID)
	}
	if col.dimension > 0 && len(entry.Embedding) != col.dimension {
		return fmt.Errorf("collection %s expects dimension %d, got %d", entry.ChatID, col.dimension, len(entry.Embedding))
	}
	stored := *entry
	stored.Embedding = append([]float32(nil), entry.Embedding...)
	col.entries[entry.MessageID] = stored
	return nil
}

func (v *VectorStore) GetEntry(_ context.Context, chatID, messageID string) (*model.IndexEntry, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	col, ok := v.collections[chatID]
	if !ok {
		return nil, false, nil
	}
	entry, ok := col.entries[messageID]
	if !ok {
		return nil, false, nil
	}
	entry.Embedding = nil
	return &entry, true, nil
}

func (v *VectorStore) UpdateMeta(_ context.Context, chatID, messageID string, meta model.IndexMeta, mtime int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	col, ok := v.collections[chatID]
	if !ok {
		return fmt.Errorf("collection %s does not exist", chatID)
	}
	entry, ok := col.entries[messageID]
	if !ok {
		return fmt.Errorf("entry %s/%s does not exist", chatID, messageID)
	}
	if err := model.CheckIndexMeta(entry.Sender, meta); err != nil {
		return err
	}
	entry.Meta = meta
	entry.Mtime = mtime
	col.entries[messageID] = entry
	return nil
}

func (v *VectorStore) Search(_ context.Context, chatID string, query []float32, k int) ([]model.IndexHit, error) {
	v.mu.RLock()
	col, ok := v.collections[chatID]
	if !ok {
		v.mu.RUnlock()
		return []model.IndexHit{}, nil
	}
	hits := make([]model.IndexHit, 0, len(col.entries))
	for _, entry := range col.entries {
		hits = append(hits, model.IndexHit{
			ChatID:    chatID,
			MessageID: entry.MessageID,
			Sender:    entry.Sender,
			Content:   entry.Content,
			Score:     CosineSimilarity(query, entry.Embedding),
			MsgCtime:  entry.MsgCtime,
		})
	}
	v.mu.RUnlock()
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].MsgCtime != hits[j].MsgCtime {
			return hits[i].MsgCtime < hits[j].MsgCtime
		}
		return hits[i].MessageID < hits[j].MessageID
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (v *VectorStore) ListEntries(_ context.Context, chatID string) ([]model.IndexEntry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	col, ok := v.collections[chatID]
	if !ok {
		return []model.IndexEntry{}, nil
	}
	entries := make([]model.IndexEntry, 0, len(col.entries))
	for _, entry := range col.entries {
		entry.Embedding = nil
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MsgCtime != entries[j].MsgCtime {
			return entries[i].MsgCtime < entries[j].MsgCtime
		}
		return entries[i].MessageID < entries[j].MessageID
	})
	return entries, nil
}

func (v *VectorStore) DeleteEntries(_ context.Context, chatID string, messageIDs []string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	col, ok := v.collections[chatID]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, id := range messageIDs {
		if _, ok := col.entries[id]; ok {
			delete(col.entries, id)
			removed++
		}
	}
	return removed, nil
}

func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
