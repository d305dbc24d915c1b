package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/xxxsen/chatctx/internal/ai"
	"github.com/xxxsen/chatctx/internal/memstore"
	"github.com/xxxsen/chatctx/internal/model"
)

var errIndexDown = errors.New("vector store unreachable")

// topicEmbedder maps words onto a few topic axes so that similarity in tests
// follows meaning rather than shared stop words.
type topicEmbedder struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

var topics = map[string]int{
	"trip": 0, "travel": 0, "go": 0, "april": 0, "beach": 0, "beaches": 0, "where": 0, "vacation": 0,
	"bake": 1, "bread": 1, "sourdough": 1, "recipe": 1,
	"interest": 2, "compound": 2, "tax": 2, "budget": 2,
}

func (e *topicEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.calls == nil {
		e.calls = map[string]int{}
	}
	e.calls[taskType]++
	if e.err != nil {
		return nil, e.err
	}
	vec := []float32{0, 0, 0, 0.1}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) }) {
		if axis, ok := topics[w]; ok {
			vec[axis]++
		}
	}
	return vec, nil
}

func (e *topicEmbedder) ModelName() string { return "topic" }

func (e *topicEmbedder) count(taskType string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[taskType]
}

// flakyVectorStore fails every call while down is set.
type flakyVectorStore struct {
	*memstore.VectorStore
	down     bool
	dropDown bool
}

func (f *flakyVectorStore) EnsureCollection(ctx context.Context, chatID, modelName string, dimension int, now int64) error {
	if f.down {
		return errIndexDown
	}
	return f.VectorStore.EnsureCollection(ctx, chatID, modelName, dimension, now)
}

func (f *flakyVectorStore) CollectionDimension(ctx context.Context, chatID string) (int, bool, error) {
	if f.down {
		return 0, false, errIndexDown
	}
	return f.VectorStore.CollectionDimension(ctx, chatID)
}

func (f *flakyVectorStore) DropCollection(ctx context.Context, chatID string) error {
	if f.down || f.dropDown {
		return errIndexDown
	}
	return f.VectorStore.DropCollection(ctx, chatID)
}

func (f *flakyVectorStore) Upsert(ctx context.Context, entry *model.IndexEntry) error {
	if f.down {
		return errIndexDown
	}
	return f.VectorStore.Upsert(ctx, entry)
}

func (f *flakyVectorStore) GetEntry(ctx context.Context, chatID, messageID string) (*model.IndexEntry, bool, error) {
	if f.down {
		return nil, false, errIndexDown
	}
	return f.VectorStore.GetEntry(ctx, chatID, messageID)
}

func (f *flakyVectorStore) UpdateMeta(ctx context.Context, chatID, messageID string, meta model.IndexMeta, mtime int64) error {
	if f.down {
		return errIndexDown
	}
	return f.VectorStore.UpdateMeta(ctx, chatID, messageID, meta, mtime)
}

func (f *flakyVectorStore) ListEntries(ctx context.Context, chatID string) ([]model.IndexEntry, error) {
	if f.down {
		return nil, errIndexDown
	}
	return f.VectorStore.ListEntries(ctx, chatID)
}

type fakeResponder struct {
	mu   sync.Mutex
	err  error
	reqs []*ai.ChatRequest
}

func (f *fakeResponder) Respond(ctx context.Context, req *ai.ChatRequest) (*ai.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Reply{Text: "noted", Model: req.Model, Provider: "fake"}, nil
}

func (f *fakeResponder) last() *ai.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		return nil
	}
	return f.reqs[len(f.reqs)-1]
}

type testEnv struct {
	store      *memstore.Store
	vectors    *flakyVectorStore
	embedder   *topicEmbedder
	responder  *fakeResponder
	log        *MessageLog
	index      *SemanticIndex
	selector   *ContextSelector
	reconciler *IndexReconciler
	svc        *ChatService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     memstore.NewStore(),
		vectors:   &flakyVectorStore{VectorStore: memstore.NewVectorStore()},
		embedder:  &topicEmbedder{},
		responder: &fakeResponder{},
	}
	env.log = NewMessageLog(env.store)
	env.index = NewSemanticIndex(env.vectors, env.embedder, 0)
	env.selector = NewContextSelector(env.store, env.log, env.index, SelectorConfig{})
	env.reconciler = NewIndexReconciler(env.store, env.log, env.index)
	env.svc = NewChatService(env.store, env.log, env.index, env.selector, env.reconciler, env.responder, ChatServiceConfig{
		DefaultModel: "gpt-oss:20b",
	})
	return env
}

func (env *testEnv) createChat(t *testing.T, userID, title string) *model.Chat {
	t.Helper()
	res, err := env.svc.CreateChat(context.Background(), userID, title, "", "")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	return res.Chat
}
