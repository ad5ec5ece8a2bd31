package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/p-n-ai/pai-progress/internal/progress"
)

const feedWriteTimeout = 5 * time.Second

var errFeedDisabled = errors.New("live progress feed is not enabled")

// progressFeed streams transition events to a websocket client. The optional
// courseId query parameter filters the stream to one course.
func (s *server) progressFeed(c *gin.Context) {
	if s.feed == nil {
		fail(c, errFeedDisabled)
		return
	}
	courseID := c.Query("courseId")
	actor := actorFrom(c)

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "actor_id", actor.ID, "error", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := s.feed.Subscribe()
	defer cancel()

	// Clients only listen; CloseRead handles their close frames.
	ctx := conn.CloseRead(c.Request.Context())
	slog.Info("progress feed subscribed", "actor_id", actor.ID, "course_id", courseID)

	for {
		select {
		case <-ctx.Done():
			slog.Info("progress feed closed", "actor_id", actor.ID)
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "feed closed")
				return
			}
			if courseID != "" && ev.CourseID != courseID {
				continue
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				slog.Warn("progress feed write failed", "actor_id", actor.ID, "error", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev progress.TransitionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
