package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// EventType defines the type of a hook event.
type EventType string

// --- Event Type Constants ---
const (
	// File Lifecycle Events
	EventPostFileOpen  EventType = "PostFileOpen"
	EventPostFileClose EventType = "PostFileClose"

	// Write Path Events
	EventPreFrameAppend  EventType = "PreFrameAppend"
	EventPostFrameAppend EventType = "PostFrameAppend"

	// Durability & Recovery Events
	EventPostTruncate     EventType = "PostTruncate"
	EventPostDurableFlush EventType = "PostDurableFlush"
	EventPostScanReverse  EventType = "PostScanReverse"
)

// --- HookManager Interface and Implementation ---

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	// It handles synchronous vs. asynchronous execution based on the event type and listener preference.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete. Useful for graceful shutdown.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	// Type returns the type of the event.
	Type() EventType
	// Payload returns the data associated with the event.
	Payload() interface{}
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// FileLifecyclePayload describes a file being opened or closed.
type FileLifecyclePayload struct {
	Path       string
	TailOffset int64
	Created    bool
	ReadOnly   bool
}

// NewPostFileOpenEvent creates an event for after a file has been created or opened.
func NewPostFileOpenEvent(payload FileLifecyclePayload) HookEvent {
	return &BaseEvent{eventType: EventPostFileOpen, payload: payload}
}

// NewPostFileCloseEvent creates an event for after a file has been closed.
func NewPostFileCloseEvent(payload FileLifecyclePayload) HookEvent {
	return &BaseEvent{eventType: EventPostFileClose, payload: payload}
}

// PreFrameAppendPayload contains the data for a PreFrameAppend event.
// Tag is a pointer so listeners can rewrite it before the frame is encoded.
// Returning an error from the listener rejects the frame; nothing is written.
type PreFrameAppendPayload struct {
	Path           string
	Tag            *uint32
	PayloadLength  int
	TailMetaLength int
	Tombstone      bool
	// Streaming is true for frames finalized through a Builder.
	Streaming bool
}

// NewPreFrameAppendEvent creates an event for before a frame is written.
func NewPreFrameAppendEvent(payload PreFrameAppendPayload) HookEvent {
	return &BaseEvent{eventType: EventPreFrameAppend, payload: payload}
}

// PostFrameAppendPayload contains data after a frame write.
type PostFrameAppendPayload struct {
	Path           string
	Tag            uint32
	Offset         int64
	FrameLength    int
	PayloadLength  int
	TailMetaLength int
	Tombstone      bool
	Streaming      bool
	// Writes is the number of positional writes used for the frame.
	Writes int
	Error  error
}

// NewPostFrameAppendEvent creates an event for after a frame has been written.
func NewPostFrameAppendEvent(payload PostFrameAppendPayload) HookEvent {
	return &BaseEvent{eventType: EventPostFrameAppend, payload: payload}
}

// PostTruncatePayload contains information about a truncation.
type PostTruncatePayload struct {
	Path      string
	OldLength int64
	NewLength int64
}

// NewPostTruncateEvent creates an event for after the file has been truncated.
func NewPostTruncateEvent(payload PostTruncatePayload) HookEvent {
	return &BaseEvent{eventType: EventPostTruncate, payload: payload}
}

// PostDurableFlushPayload contains information about a completed flush.
type PostDurableFlushPayload struct {
	Path       string
	TailOffset int64
	Duration   time.Duration
	Error      error
}

// NewPostDurableFlushEvent creates an event for after data has been flushed to stable storage.
func NewPostDurableFlushEvent(payload PostDurableFlushPayload) HookEvent {
	return &BaseEvent{eventType: EventPostDurableFlush, payload: payload}
}

// PostScanReversePayload summarizes a completed reverse scan.
type PostScanReversePayload struct {
	Path        string
	StartOffset int64
	// StopOffset is the fence-end position the scan stopped at. It equals the
	// header fence size after a clean scan.
	StopOffset int64
	Frames     int
	Tombstones int
	Duration   time.Duration
	Error      error
}

// NewPostScanReverseEvent creates an event for after a reverse scan has finished.
func NewPostScanReverseEvent(payload PostScanReversePayload) HookEvent {
	return &BaseEvent{eventType: EventPostScanReverse, payload: payload}
}

// --- HookListener Interface ---

// HookListener defines the interface for components that want to listen to events.
type HookListener interface {
	// OnEvent is called by the HookManager when a registered event is triggered.
	// Returning an error from a "Pre" hook (e.g., PreFrameAppend) cancels the operation.
	// Errors from "Post" hooks are logged without affecting the main operation.
	OnEvent(ctx context.Context, event HookEvent) error

	// Priority returns the listener's priority. Lower numbers are executed first.
	Priority() int

	// IsAsync indicates if the listener should be called asynchronously for Post-events.
	IsAsync() bool
}

// listenerWithPriority wraps a listener with its priority.
type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	// The map stores slices of listeners, kept sorted by priority.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup // For tracking async listeners
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger.With("component", "HookManager"),
	}
}

// Register adds a listener for a specific event type, maintaining priority order.
// Listeners with equal priority run in registration order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{
		listener: listener,
		priority: listener.Priority(),
	}

	l := m.listeners[eventType]
	// First index with a strictly greater priority.
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority > item.priority
	})

	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item

	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners, ok := m.listeners[event.Type()]
	m.mu.RUnlock()

	if !ok || len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		isListenerAsync := item.listener.IsAsync()

		// Pre-hooks are always synchronous so they can cancel the operation.
		if isPreHook || !isListenerAsync {
			if isPreHook && isListenerAsync {
				m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
			}

			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
		} else {
			m.wg.Add(1)
			go func(currentItem *listenerWithPriority) {
				defer m.wg.Done()
				if err := currentItem.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", currentItem.priority, "error", err)
				}
			}(item)
		}
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
