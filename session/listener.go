package session

import (
	"log/slog"

	"github.com/comfypanel/comfypanel/client"
)

// StreamHandlers returns event handlers that feed the coordinator's progress readout and
// processing flag. Stream events never save gallery items; only gallery_updated, which
// reports store changes made elsewhere, bumps the refresh signal.
func (c *Coordinator) StreamHandlers() *client.EventHandlers {
	return (&client.EventHandlers{}).
		WithExecutionStartHandler(func(msg *client.EventExecutionStartData) {
			c.processing.Store(true)
		}).
		WithProgressHandler(func(msg *client.EventProgressData) {
			c.setProgress(Progress{Value: msg.Value, Max: msg.Max})
		}).
		WithExecutingHandler(func(msg *client.EventExecutingData) {
			if msg.Node == nil {
				c.processing.Store(false)
				return
			}
			c.processing.Store(true)
		}).
		WithExecutedHandler(func(msg *client.EventExecutedData) {
			c.processing.Store(false)
		}).
		WithExecutionErrorHandler(func(msg *client.EventExecutionErrorData) {
			c.processing.Store(false)
		}).
		WithExecutionInterruptedHandler(func(msg *client.EventExecutionInterruptedData) {
			c.processing.Store(false)
		}).
		WithGalleryUpdatedHandler(func(msg *client.EventGalleryUpdatedData) {
			slog.Debug("gallery updated", "action", msg.Action, "id", msg.ID)
			c.refresh.Bump()
		})
}
