package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/utils"
)

// ActivityRecorder buffers activity log entries until the surrounding transaction flushes them.
type ActivityRecorder struct {
	userId  *int
	now     func() time.Time
	entries []models.ActivityLog
}

func NewActivityRecorder(ctx context.Context) *ActivityRecorder {
	return &ActivityRecorder{
		userId: utils.UserIdPtrFromContext(ctx),
		now:    time.Now,
	}
}

func (r *ActivityRecorder) Record(format string, args ...any) {
	activity := fmt.Sprintf(format, args...)
	if len(activity) > models.ActivityMaxLength {
		activity = activity[:models.ActivityMaxLength]
	}
	r.entries = append(r.entries, models.ActivityLog{
		UserId:    r.userId,
		Activity:  activity,
		Timestamp: r.now().UTC(),
	})
}

func (r *ActivityRecorder) Entries() []models.ActivityLog {
	return r.entries
}

// Flush writes the buffered entries through store and empties the buffer.
func (r *ActivityRecorder) Flush(ctx context.Context, store models.PurchaseOrderStore) error {
	if len(r.entries) == 0 {
		return nil
	}
	if err := store.AppendActivityLogs(ctx, r.entries); err != nil {
		return fmt.Errorf("append activity logs: %w", err)
	}
	r.entries = nil
	return nil
}
