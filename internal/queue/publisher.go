package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"facultyportal/internal/attendance"
)

// TypeSessionCommitted carries an attendance.Receipt.
const TypeSessionCommitted = "session.committed"

// CommitPublisher turns commit notifications into queue messages.
type CommitPublisher struct {
	q Queue
}

func NewCommitPublisher(q Queue) *CommitPublisher {
	return &CommitPublisher{q: q}
}

// SessionCommitted implements attendance.CommitNotifier.
func (p *CommitPublisher) SessionCommitted(ctx context.Context, r attendance.Receipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode receipt")
	}
	return p.q.Publish(ctx, Message{
		ID:          uuid.NewString(),
		Type:        TypeSessionCommitted,
		Body:        body,
		PublishedAt: time.Now().UTC(),
	})
}

// DecodeReceipt reads the body of a TypeSessionCommitted message.
func DecodeReceipt(msg Message) (attendance.Receipt, error) {
	if msg.Type != TypeSessionCommitted {
		return attendance.Receipt{}, errors.Errorf("unexpected message type %q", msg.Type)
	}
	var r attendance.Receipt
	if err := json.Unmarshal(msg.Body, &r); err != nil {
		return attendance.Receipt{}, errors.Wrap(err, "decode receipt")
	}
	if r.SessionID == "" {
		return attendance.Receipt{}, errors.New("receipt has no session id")
	}
	return r, nil
}
