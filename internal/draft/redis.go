package draft

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"facultyportal/internal/attendance"
	"facultyportal/internal/logging"
)

const keyPrefix = "draft:"

// Redis stores drafts as plain string keys that expire after the retention
// period, so it needs no reaper.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedis uses ttl for every write; zero keeps drafts forever.
func NewRedis(client *redis.Client, ttl time.Duration, log *zap.Logger) *Redis {
	return &Redis{client: client, ttl: ttl, log: logging.OrNop(log)}
}

func (r *Redis) Load(ctx context.Context, sessionID string) ([]attendance.Record, bool, error) {
	return loadPayload(ctx, r.log, sessionID, func(ctx context.Context) ([]byte, bool, error) {
		b, err := r.client.Get(ctx, keyPrefix+sessionID).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, errors.Wrap(err, "load draft")
		}
		return b, true, nil
	})
}

func (r *Redis) Save(ctx context.Context, sessionID string, records []attendance.Record) error {
	payload, err := encode(records)
	if err != nil {
		return err
	}
	return errors.Wrap(r.client.Set(ctx, keyPrefix+sessionID, payload, r.ttl).Err(), "save draft")
}
