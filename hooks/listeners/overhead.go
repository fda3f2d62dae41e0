package listeners

import (
	"context"
	"expvar"
	"io"
	"log/slog"
	"sync"

	"github.com/INLOpen/rbf/frame"
	"github.com/INLOpen/rbf/hooks"
)

var (
	// expvars are process-global and published once.
	overheadMetricsOnce sync.Once
	totalPayloadBytes   *expvar.Int
	totalFrameBytes     *expvar.Int
	totalFrames         *expvar.Int
	totalSplitWrites    *expvar.Int
)

func initOverheadMetrics() {
	overheadMetricsOnce.Do(func() {
		totalPayloadBytes = expvar.NewInt("rbf_payload_bytes_total")
		totalFrameBytes = expvar.NewInt("rbf_frame_bytes_total")
		totalFrames = expvar.NewInt("rbf_frames_total")
		totalSplitWrites = expvar.NewInt("rbf_split_appends_total")
		// Bytes on disk (frame plus its fence) per payload byte.
		expvar.Publish("rbf_framing_overhead", expvar.Func(func() interface{} {
			payload := totalPayloadBytes.Value()
			if payload == 0 {
				return 0.0
			}
			return float64(totalFrameBytes.Value()) / float64(payload)
		}))
	})
}

// FramingOverheadListener tracks how many bytes framing adds on top of the
// payloads written.
type FramingOverheadListener struct {
	logger *slog.Logger

	payloadBytes *expvar.Int
	frameBytes   *expvar.Int
	frames       *expvar.Int
	splitWrites  *expvar.Int
}

// NewFramingOverheadListener creates a new listener.
func NewFramingOverheadListener(logger *slog.Logger) *FramingOverheadListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	initOverheadMetrics()
	return &FramingOverheadListener{
		logger:       logger.With("component", "FramingOverheadListener"),
		payloadBytes: totalPayloadBytes,
		frameBytes:   totalFrameBytes,
		frames:       totalFrames,
		splitWrites:  totalSplitWrites,
	}
}

// OnEvent is called when a PostFrameAppend event is triggered.
func (l *FramingOverheadListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	payload, ok := event.Payload().(hooks.PostFrameAppendPayload)
	if !ok || payload.Error != nil {
		return nil
	}

	l.payloadBytes.Add(int64(payload.PayloadLength))
	l.frameBytes.Add(int64(payload.FrameLength + frame.FenceSize))
	l.frames.Add(1)
	if payload.Writes > 1 {
		l.splitWrites.Add(1)
	}

	l.logger.Debug("Frame append recorded",
		"tag", payload.Tag,
		"offset", payload.Offset,
		"payload_length", payload.PayloadLength,
		"frame_length", payload.FrameLength,
		"writes", payload.Writes,
	)
	return nil
}

// Priority defines the execution order. Lower numbers run first.
func (l *FramingOverheadListener) Priority() int {
	return 100
}

// IsAsync indicates this listener can run in the background.
func (l *FramingOverheadListener) IsAsync() bool {
	return true
}
