package service

import (
	"context"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatctx/internal/model"
	appErr "github.com/xxxsen/chatctx/internal/pkg/errors"
)

const (
	DefaultContextLimit = 5
	MaxContextLimit     = 50
)

// ContextQuery asks for the prior messages most relevant to Text. The query
// message itself is excluded by ExcludeMessageID; when the id is unknown the
// exact ExcludeContent and ExcludeCtime pair is used instead.
type ContextQuery struct {
	ChatID           string
	Text             string
	Limit            int
	ExcludeMessageID string
	ExcludeContent   string
	ExcludeCtime     int64
}

type SelectorConfig struct {
	DefaultLimit int
	MaxLimit     int
	// MinScore drops hits scoring below it; zero disables the threshold.
	MinScore float32
}

type ContextSelector struct {
	chats ChatStore
	log   *MessageLog
	index *SemanticIndex
	cfg   SelectorConfig
}

func NewContextSelector(chats ChatStore, log *MessageLog, index *SemanticIndex, cfg SelectorConfig) *ContextSelector {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxContextLimit
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultContextLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	return &ContextSelector{chats: chats, log: log, index: index, cfg: cfg}
}

func (s *ContextSelector) resolveLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, appErr.Invalid("limit must not be negative")
	case limit == 0:
		return s.cfg.DefaultLimit, nil
	case limit > s.cfg.MaxLimit:
		return s.cfg.MaxLimit, nil
	}
	return limit, nil
}

// Select never writes to the log or the index. Index failures surface as
// ErrDependency; hits whose message left the log are dropped and logged.
func (s *ContextSelector) Select(ctx context.Context, q ContextQuery) (*model.ContextResult, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, appErr.Invalid("query text is empty")
	}
	if strings.TrimSpace(q.ChatID) == "" {
		return nil, appErr.Invalid("chat id is required")
	}
	limit, err := s.resolveLimit(q.Limit)
	if err != nil {
		return nil, err
	}
	exists, err := s.chats.Exists(ctx, q.ChatID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, appErr.ErrNotFound
	}
	result := &model.ContextResult{Query: q.Text, Items: []model.ContextItem{}}

	// one extra slot so that dropping the query message still fills the limit
	hits, err := s.index.Query(ctx, q.ChatID, q.Text, limit+1)
	if err != nil {
		return nil, err
	}
	candidates := make([]model.IndexHit, 0, len(hits))
	for _, hit := range hits {
		if s.isSelf(q, hit) {
			continue
		}
		if s.cfg.MinScore > 0 && hit.Score < s.cfg.MinScore {
			continue
		}
		candidates = append(candidates, hit)
	}
	if len(candidates) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, hit := range candidates {
		ids = append(ids, hit.MessageID)
	}
	msgs, err := s.log.ListByIDs(ctx, q.ChatID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Message, len(msgs))
	for _, msg := range msgs {
		byID[msg.ID] = msg
	}
	for _, hit := range candidates {
		msg, ok := byID[hit.MessageID]
		if !ok {
			logutil.GetLogger(ctx).Warn("drop dangling index entry",
				zap.String("chat_id", q.ChatID),
				zap.String("message_id", hit.MessageID),
				zap.Error(appErr.Consistency(q.ChatID, hit.MessageID)))
			continue
		}
		result.Items = append(result.Items, model.ContextItem{
			MessageID: msg.ID,
			Sender:    msg.Sender,
			Content:   msg.Content,
			Score:     hit.Score,
			Ctime:     msg.Ctime,
		})
	}
	sortContextItems(result.Items)
	if len(result.Items) > limit {
		result.Items = result.Items[:limit]
	}
	return result, nil
}

func (s *ContextSelector) isSelf(q ContextQuery, hit model.IndexHit) bool {
	if q.ExcludeMessageID != "" {
		return hit.MessageID == q.ExcludeMessageID
	}
	if q.ExcludeContent != "" {
		return hit.Content == q.ExcludeContent && hit.MsgCtime == q.ExcludeCtime
	}
	return false
}

// sortContextItems orders by score desc, then earlier ctime, then message id.
func sortContextItems(items []model.ContextItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if items[i].Ctime != items[j].Ctime {
			return items[i].Ctime < items[j].Ctime
		}
		return items[i].MessageID < items[j].MessageID
	})
}
