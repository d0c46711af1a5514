package client

import (
	"log/slog"
)

// EventHandlers defines optional callback functions for the events of a stream.
// All handlers are optional - only provide handlers for the events you care about.
// Handlers are called from the stream's read goroutine.
type EventHandlers struct {
	// OnStatus is called with queue status updates
	OnStatus func(*EventStatusData)

	// OnExecutionStart is called when the backend starts running a prompt
	OnExecutionStart func(*EventExecutionStartData)

	// OnExecutionCached is called with the nodes whose cached outputs were reused
	OnExecutionCached func(*EventExecutionCachedData)

	// OnExecuting is called when a node starts executing, and with a nil node when the prompt is done
	OnExecuting func(*EventExecutingData)

	// OnProgress is called with sampler progress for the executing node
	OnProgress func(*EventProgressData)

	// OnExecuted is called when a node produced output
	OnExecuted func(*EventExecutedData)

	// OnExecutionError is called when a prompt failed on the backend
	OnExecutionError func(*EventExecutionErrorData)

	// OnExecutionInterrupted is called when a prompt was interrupted
	OnExecutionInterrupted func(*EventExecutionInterruptedData)

	// OnGalleryUpdated is called after the gallery store changed
	OnGalleryUpdated func(*EventGalleryUpdatedData)

	// OnUnknown receives events with unrecognized tags. They are ignored when nil.
	OnUnknown func(StreamEvent)

	next *EventHandlers
}

// DefaultEventHandlers returns EventHandlers with sensible defaults:
// - Logs execution start, completion and errors
// - Does NOT track progress (add your own if needed)
func DefaultEventHandlers() *EventHandlers {
	return &EventHandlers{
		OnExecutionStart: func(msg *EventExecutionStartData) {
			slog.Info("Execution started", "prompt_id", msg.PromptID)
		},
		OnExecutionCached: func(msg *EventExecutionCachedData) {
			slog.Debug("Reusing cached nodes", "prompt_id", msg.PromptID, "nodes", msg.Nodes)
		},
		OnExecuting: func(msg *EventExecutingData) {
			if msg.Node == nil {
				slog.Info("Execution completed", "prompt_id", msg.PromptID)
			}
		},
		OnExecutionError: func(msg *EventExecutionErrorData) {
			slog.Error("Execution error",
				"prompt_id", msg.PromptID,
				"node_id", msg.Node,
				"node_type", msg.NodeType,
				"error", msg.ExceptionMessage,
			)
		},
		OnExecutionInterrupted: func(msg *EventExecutionInterruptedData) {
			slog.Warn("Execution interrupted", "prompt_id", msg.PromptID, "node_id", msg.Node)
		},
	}
}

// WithStatusHandler adds a status handler (builder pattern)
func (h *EventHandlers) WithStatusHandler(fn func(*EventStatusData)) *EventHandlers {
	h.OnStatus = fn
	return h
}

// WithExecutionStartHandler adds an execution start handler (builder pattern)
func (h *EventHandlers) WithExecutionStartHandler(fn func(*EventExecutionStartData)) *EventHandlers {
	h.OnExecutionStart = fn
	return h
}

// WithExecutionCachedHandler adds a cached-nodes handler (builder pattern)
func (h *EventHandlers) WithExecutionCachedHandler(fn func(*EventExecutionCachedData)) *EventHandlers {
	h.OnExecutionCached = fn
	return h
}

// WithExecutingHandler adds an executing handler (builder pattern)
func (h *EventHandlers) WithExecutingHandler(fn func(*EventExecutingData)) *EventHandlers {
	h.OnExecuting = fn
	return h
}

// WithProgressHandler adds a progress handler (builder pattern)
func (h *EventHandlers) WithProgressHandler(fn func(*EventProgressData)) *EventHandlers {
	h.OnProgress = fn
	return h
}

// WithExecutedHandler adds an executed handler (builder pattern)
func (h *EventHandlers) WithExecutedHandler(fn func(*EventExecutedData)) *EventHandlers {
	h.OnExecuted = fn
	return h
}

// WithExecutionErrorHandler adds an execution error handler (builder pattern)
func (h *EventHandlers) WithExecutionErrorHandler(fn func(*EventExecutionErrorData)) *EventHandlers {
	h.OnExecutionError = fn
	return h
}

// WithExecutionInterruptedHandler adds an interruption handler (builder pattern)
func (h *EventHandlers) WithExecutionInterruptedHandler(fn func(*EventExecutionInterruptedData)) *EventHandlers {
	h.OnExecutionInterrupted = fn
	return h
}

// WithGalleryUpdatedHandler adds a gallery update handler (builder pattern)
func (h *EventHandlers) WithGalleryUpdatedHandler(fn func(*EventGalleryUpdatedData)) *EventHandlers {
	h.OnGalleryUpdated = fn
	return h
}

// WithUnknownHandler adds a handler for unrecognized events (builder pattern)
func (h *EventHandlers) WithUnknownHandler(fn func(StreamEvent)) *EventHandlers {
	h.OnUnknown = fn
	return h
}

// Then appends next to the chain, so every event reaches h's handlers and then next's (builder pattern)
func (h *EventHandlers) Then(next *EventHandlers) *EventHandlers {
	tail := h
	for tail.next != nil {
		tail = tail.next
	}
	tail.next = next
	return h
}

// Dispatch routes one event to the matching handler.
func (h *EventHandlers) Dispatch(ev StreamEvent) {
	if h == nil {
		return
	}
	defer h.next.Dispatch(ev)

	switch ev.Type {
	case EventStatus:
		if d := ev.ToStatus(); h.OnStatus != nil && d != nil {
			h.OnStatus(d)
		}
	case EventExecutionStart:
		if d := ev.ToExecutionStart(); h.OnExecutionStart != nil && d != nil {
			h.OnExecutionStart(d)
		}
	case EventExecutionCached:
		if d := ev.ToExecutionCached(); h.OnExecutionCached != nil && d != nil {
			h.OnExecutionCached(d)
		}
	case EventExecuting:
		if d := ev.ToExecuting(); h.OnExecuting != nil && d != nil {
			h.OnExecuting(d)
		}
	case EventProgress:
		if d := ev.ToProgress(); h.OnProgress != nil && d != nil {
			h.OnProgress(d)
		}
	case EventExecuted:
		if d := ev.ToExecuted(); h.OnExecuted != nil && d != nil {
			h.OnExecuted(d)
		}
	case EventExecutionError:
		if d := ev.ToExecutionError(); h.OnExecutionError != nil && d != nil {
			h.OnExecutionError(d)
		}
	case EventExecutionInterrupted:
		if d := ev.ToExecutionInterrupted(); h.OnExecutionInterrupted != nil && d != nil {
			h.OnExecutionInterrupted(d)
		}
	case EventGalleryUpdated:
		if d := ev.ToGalleryUpdated(); h.OnGalleryUpdated != nil && d != nil {
			h.OnGalleryUpdated(d)
		}
	default:
		if h.OnUnknown != nil {
			h.OnUnknown(ev)
			return
		}
		slog.Debug("Ignoring unhandled event", "type", ev.Tag)
	}
}
