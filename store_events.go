package goConsole

import (
	"context"

	"github.com/google/uuid"
)

// Event types emitted by the Store.
const (
	EventStartNoCredential    = "start_no_credential"
	EventStartRestored        = "start_restored"
	EventStartRejected        = "start_rejected"
	EventStartStorageFailure  = "start_storage_failure"
	EventLoginSuccess         = "login_success"
	EventLoginFailure         = "login_failure"
	EventLogout               = "logout"
	EventStaleResultDiscarded = "stale_result_discarded"
)

func (s *Store) emit(ctx context.Context, eventType string, snap Snapshot, success bool, errText string) {
	s.emitWithPrev(ctx, eventType, snap.Status, snap, success, errText)
}

func (s *Store) emitWithPrev(ctx context.Context, eventType string, prev Status, snap Snapshot, success bool, errText string) {
	if s == nil || s.events == nil {
		return
	}

	event := Event{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		Type:      eventType,
		Status:    snap.Status.String(),
		Epoch:     snap.Epoch,
		Success:   success,
		Error:     errText,
	}
	if prev != snap.Status {
		event.PrevStatus = prev.String()
	}
	if snap.User != nil {
		event.UserID = snap.User.ID
	}
	if id := RequestIDFromContext(ctx); id != "" {
		event.Metadata = map[string]string{"request_id": id}
	}

	s.events.Emit(ctx, event)
}
