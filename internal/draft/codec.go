// Package draft caches in-progress attendance record sets per session so an
// interrupted marking session can be resumed.
package draft

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"facultyportal/internal/attendance"
	"facultyportal/internal/metrics"
)

func encode(records []attendance.Record) ([]byte, error) {
	if records == nil {
		records = []attendance.Record{}
	}
	b, err := json.Marshal(records)
	return b, errors.Wrap(err, "encode draft")
}

// decode parses a stored payload. Anything that is not a list of unique
// uids with known statuses is a *attendance.MalformedDraftError.
func decode(sessionID string, payload []byte) ([]attendance.Record, error) {
	var records []attendance.Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, &attendance.MalformedDraftError{SessionID: sessionID, Err: err}
	}
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.UID == "" {
			return nil, &attendance.MalformedDraftError{SessionID: sessionID, Err: fmt.Errorf("record %d has no uid", i)}
		}
		if !r.Status.Valid() {
			return nil, &attendance.MalformedDraftError{SessionID: sessionID, Err: fmt.Errorf("record %d has status %q", i, r.Status)}
		}
		if _, dup := seen[r.UID]; dup {
			return nil, &attendance.MalformedDraftError{SessionID: sessionID, Err: fmt.Errorf("uid %s repeated", r.UID)}
		}
		seen[r.UID] = struct{}{}
	}
	return records, nil
}

// loadPayload turns a raw lookup into DraftStore.Load results. Malformed
// payloads are logged and reported as absent.
func loadPayload(ctx context.Context, log *zap.Logger, sessionID string, fetch func(context.Context) ([]byte, bool, error)) ([]attendance.Record, bool, error) {
	payload, ok, err := fetch(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	records, err := decode(sessionID, payload)
	if err != nil {
		var malformed *attendance.MalformedDraftError
		if errors.As(err, &malformed) {
			metrics.DraftsDiscarded.WithLabelValues("malformed").Inc()
			log.Warn("discarding malformed draft", zap.String("session_id", sessionID), zap.Error(err))
			return nil, false, nil
		}
		return nil, false, err
	}
	return records, true, nil
}
