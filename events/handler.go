package events

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Handler streams events to the caller until the request context ends.
// A comment line is written every `heartbeat` so intermediaries keep the connection open.
//
// @Summary Post activity stream
// @Description Server-Sent Events feed of post creations, updates, deletions, likes and comments.
// @Tags Posts
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /posts/events [get]
func (b *Broadcaster) Handler(heartbeat time.Duration) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		// Streams outlive the server's write timeout.
		if err := rc.SetWriteDeadline(time.Time{}); err != nil {
			logrus.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).
				Debug("write deadline not cleared; stream ends at the server write timeout")
		}

		id, ch := b.Subscribe()
		defer b.Unsubscribe(id)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		if err := rc.Flush(); err != nil {
			logrus.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error("event stream cannot be flushed")
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			case ev, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data)
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
