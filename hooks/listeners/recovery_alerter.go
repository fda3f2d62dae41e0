package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/rbf/frame"
	"github.com/INLOpen/rbf/hooks"
)

// RecoveryAlerterListener logs a warning when a reverse scan stops before
// reaching the header fence, which means the tail of the file holds a torn
// or corrupt frame.
type RecoveryAlerterListener struct {
	logger *slog.Logger
}

// NewRecoveryAlerterListener creates a new listener for monitoring reverse scans.
func NewRecoveryAlerterListener(logger *slog.Logger) *RecoveryAlerterListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RecoveryAlerterListener{
		logger: logger.With("component", "RecoveryAlerterListener"),
	}
}

// OnEvent handles the PostScanReverse event.
func (l *RecoveryAlerterListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventPostScanReverse {
		return nil
	}

	payload, ok := event.Payload().(hooks.PostScanReversePayload)
	if !ok {
		l.logger.Error("Received PostScanReverse event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}
	if payload.Error == nil {
		return nil
	}

	l.logger.Warn("Reverse scan stopped before the header fence",
		"path", payload.Path,
		"stop_offset", payload.StopOffset,
		"unscanned_bytes", payload.StopOffset-frame.HeaderFenceSize,
		"frames_recovered", payload.Frames,
		"error", payload.Error,
	)
	return nil
}

// Priority defines the execution order.
func (l *RecoveryAlerterListener) Priority() int { return 100 }

// IsAsync indicates this listener can run in the background.
func (l *RecoveryAlerterListener) IsAsync() bool { return true }
