package draft

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"facultyportal/internal/logging"
)

// Reaper is a draft store whose old entries must be removed explicitly.
type Reaper interface {
	Reap(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartReaper schedules r to drop drafts older than retention. The caller
// stops the returned cron on shutdown.
func StartReaper(schedule string, retention time.Duration, r Reaper, log *zap.Logger) (*cron.Cron, error) {
	log = logging.OrNop(log).Named("draft-reaper")
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, func() { reapOnce(r, retention, log, time.Now()) }); err != nil {
		return nil, errors.Wrapf(err, "schedule reaper %q", schedule)
	}
	c.Start()
	log.Info("started", zap.String("schedule", schedule), zap.Duration("retention", retention))
	return c, nil
}

func reapOnce(r Reaper, retention time.Duration, log *zap.Logger, now time.Time) int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()
	n, err := r.Reap(ctx, now.Add(-retention))
	if err != nil {
		log.Error("reap failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		log.Info("reaped drafts", zap.Int64("count", n))
	}
	return n
}
