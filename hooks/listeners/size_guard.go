package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/rbf/hooks"
)

// SizeRule bounds the payload length accepted for one frame tag.
type SizeRule struct {
	Tag        uint32
	MaxPayload int
	// Reject vetoes oversized frames instead of only logging them.
	Reject bool
}

// FrameSizeGuardListener checks frames against per-tag size rules before
// they are written.
type FrameSizeGuardListener struct {
	logger *slog.Logger
	rules  map[uint32]SizeRule
}

// NewFrameSizeGuardListener creates a new listener. A later rule for the same
// tag replaces an earlier one.
func NewFrameSizeGuardListener(logger *slog.Logger, rules []SizeRule) *FrameSizeGuardListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ruleMap := make(map[uint32]SizeRule, len(rules))
	for _, rule := range rules {
		ruleMap[rule.Tag] = rule
	}

	return &FrameSizeGuardListener{
		logger: logger.With("component", "FrameSizeGuardListener"),
		rules:  ruleMap,
	}
}

// OnEvent handles PreFrameAppend events.
func (l *FrameSizeGuardListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventPreFrameAppend {
		return nil
	}

	payload, ok := event.Payload().(hooks.PreFrameAppendPayload)
	if !ok {
		l.logger.Error("Received PreFrameAppend event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}
	if payload.Tag == nil {
		return nil
	}

	rule, ok := l.rules[*payload.Tag]
	if !ok || payload.PayloadLength <= rule.MaxPayload {
		return nil
	}

	l.logger.Warn("Oversized frame",
		"path", payload.Path,
		"tag", *payload.Tag,
		"payload_length", payload.PayloadLength,
		"max_payload", rule.MaxPayload,
		"rejected", rule.Reject,
	)
	if rule.Reject {
		return fmt.Errorf("payload of %d bytes exceeds limit %d for tag %d", payload.PayloadLength, rule.MaxPayload, *payload.Tag)
	}
	return nil
}

// Priority defines the execution order.
func (l *FrameSizeGuardListener) Priority() int { return 10 }

// IsAsync reports false; Pre-hooks always run synchronously.
func (l *FrameSizeGuardListener) IsAsync() bool { return false }
