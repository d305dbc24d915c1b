package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	StageIndexUserMessage      = "index_user_message"
	StageIndexAssistantMessage = "index_assistant_message"
	StageContextFetch          = "context_fetch"
	StageHistoryFetch          = "history_fetch"
	StageIndexDelete           = "index_delete"
	StageIndexRebuild          = "index_rebuild"
)

// Warning reports a best-effort step that failed while the operation as a
// whole succeeded.
type Warning struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type warnings []Warning

func (w *warnings) add(ctx context.Context, stage string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	fields = append(fields, zap.String("stage", stage), zap.Error(err))
	logutil.GetLogger(ctx).Warn("best-effort step failed", fields...)
	*w = append(*w, Warning{Stage: stage, Message: err.Error()})
}

func (w warnings) list() []Warning {
	if len(w) == 0 {
		return []Warning{}
	}
	return []Warning(w)
}
