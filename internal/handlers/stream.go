package handlers

import (
	"io"
	"time"

	"eventwall/internal/models"
	"eventwall/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/pkg/errors"
)

// Stream pushes the activity's events to the client as server-sent events.
// The first event is a snapshot of the current state. The stream ends when the
// client goes away or the activity is deleted.
func (h *HTTPHandler) Stream(admin services.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		events := make(chan models.Event, h.stream.Buffer)

		// The bus calls this while the activity's publish lock is held, so it
		// must never wait on a slow client.
		unsubscribe, err := admin.Subscribe(id, func(ev models.Event) error {
			select {
			case events <- ev:
				return nil
			default:
				return errors.Errorf("stream: client of %s is behind, dropped %s", id, ev.Type)
			}
		})
		if err != nil {
			fail(c, err)
			return
		}
		defer unsubscribe()

		snap, err := admin.Snapshot(id)
		if err != nil {
			fail(c, err)
			return
		}

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.SSEvent(string(models.EventSnapshot), models.Event{
			Type:       models.EventSnapshot,
			ActivityID: id,
			Payload:    snap,
			At:         time.Now(),
		})
		c.Writer.Flush()

		heartbeat := time.NewTicker(h.stream.Heartbeat)
		defer heartbeat.Stop()

		logger.Infof("stream: %s %s opened by %s", admin.Kind(), id, c.ClientIP())
		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case <-heartbeat.C:
				_, err := io.WriteString(w, ": ping\n\n")
				return err == nil
			case ev := <-events:
				c.SSEvent(string(ev.Type), ev)
				return ev.Type != models.EventDeleted
			}
		})
		logger.Infof("stream: %s %s closed", admin.Kind(), id)
	}
}
