// Package memstore holds process-local implementations of the chat log and
// the vector store, used by the "memory" storage type and by tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/chatctx/internal/model"
	appErr "github.com/xxxsen/chatctx/internal/pkg/errors"
)

// Store keeps chats and their messages. It implements both the chat store and
// the message log store, so deleting a chat and its messages is atomic.
type Store struct {
	mu       sync.RWMutex
	chats    map[string]*model.Chat
	messages map[string][]model.Message
}

func NewStore() *Store {
	return &Store{
		chats:    make(map[string]*model.Chat),
		messages: make(map[string][]model.Message),
	}
}

func (s *Store) CreateWithMessage(_ context.Context, chat *model.Chat, first *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chat.ID]; ok {
		return appErr.ErrConflict
	}
	chat.State = 1
	chat.MsgSeq = 0
	if first != nil {
		chat.MsgSeq = 1
		first.Seq = 1
		s.messages[chat.ID] = []model.Message{*first}
	}
	stored := *chat
	s.chats[chat.ID] = &stored
	return nil
}

func (s *Store) GetByID(_ context.Context, userID, chatID string) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	copied := *chat
	return &copied, nil
}

func (s *Store) Find(_ context.Context, chatID string) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	copied := *chat
	return &copied, nil
}

func (s *Store) Exists(_ context.Context, chatID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chats[chatID]
	return ok, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chats := make([]model.Chat, 0)
	for _, chat := range s.chats {
		if chat.UserID == userID {
			chats = append(chats, *chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		if chats[i].Ctime != chats[j].Ctime {
			return chats[i].Ctime > chats[j].Ctime
		}
		return chats[i].ID > chats[j].ID
	})
	return chats, nil
}

func (s *Store) ListIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.chats))
	for id := range s.chats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) UpdateTitle(_ context.Context, userID, chatID, title string, mtime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		return appErr.ErrNotFound
	}
	chat.Title = title
	chat.Mtime = mtime
	return nil
}

func (s *Store) DeleteWithMessages(_ context.Context, userID, chatID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		return 0, appErr.ErrNotFound
	}
	count := int64(len(s.messages[chatID]))
	delete(s.messages, chatID)
	delete(s.chats, chatID)
	return count, nil
}

func (s *Store) Append(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[msg.ChatID]
	if !ok {
		return appErr.ErrNotFound
	}
	chat.MsgSeq++
	chat.Mtime = msg.Ctime
	msg.Seq = chat.MsgSeq
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], *msg)
	return nil
}

func (s *Store) ListByChat(_ context.Context, chatID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[chatID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) ListByIDs(_ context.Context, chatID string, ids []string) ([]model.Message, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, 0, len(ids))
	for _, msg := range s.messages[chatID] {
		if _, ok := want[msg.ID]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}
