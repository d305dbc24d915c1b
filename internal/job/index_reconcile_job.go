package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatctx/internal/service"
)

type reconciler interface {
	ReconcileAll(ctx context.Context) (*service.ReconcileSummary, error)
}

// IndexReconcileJob repairs index entries the write path failed to mirror
// and removes entries whose messages are gone.
type IndexReconcileJob struct {
	reconciler reconciler
}

func NewIndexReconcileJob(r reconciler) *IndexReconcileJob {
	return &IndexReconcileJob{reconciler: r}
}

func (j *IndexReconcileJob) Name() string {
	return "index_reconcile"
}

func (j *IndexReconcileJob) Run(ctx context.Context) error {
	sum, err := j.reconciler.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("index reconciled",
		zap.Int("chats", sum.Chats),
		zap.Int("upserted", sum.Upserted),
		zap.Int("removed", sum.Removed),
		zap.Int("failed", sum.Failed),
		zap.Int("dropped_collections", sum.DroppedCollections))
	return nil
}
