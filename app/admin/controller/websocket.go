package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/redis"
	"go.uber.org/zap"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string `json:"type"` // "progress", "ping", "error"
	Payload any    `json:"payload"`
}

// HandleWebSocket streams the progress of one job: /api/ws?job_id=<id>.
//
// The last stored progress is sent first, then every update until the job reaches a terminal
// state, at which point the server closes the connection normally.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.Progress == nil {
		http.Error(w, "job progress not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		http.Error(w, "job_id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// subscribe before reading the snapshot so no update falls in between
	updates, err := c.App.Progress.Watch(ctx, jobID)
	if err != nil {
		c.App.Logger.Warn("Failed to watch job progress", zap.String("job_id", jobID), zap.Error(err))
		http.Error(w, "job progress not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	logger := c.App.Logger.With(zap.String("job_id", jobID), zap.String("remote_addr", r.RemoteAddr))
	logger.Debug("WebSocket client connected")

	// reads only detect the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshot, err := c.App.Progress.GetProgress(ctx, jobID)
	switch {
	case err == nil:
		if done := c.sendProgress(conn, snapshot); done {
			return
		}
	case !errors.Is(err, redis.ErrNoProgress):
		logger.Warn("Failed to read job progress", zap.Error(err))
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("WebSocket client disconnected")
			return
		case p, ok := <-updates:
			if !ok {
				return
			}
			if done := c.sendProgress(conn, p); done {
				return
			}
		case <-ticker.C:
			msg := ServerMessage{Type: "ping", Payload: map[string]int64{"timestamp": time.Now().Unix()}}
			if err := c.write(conn, msg); err != nil {
				return
			}
		}
	}
}

// sendProgress writes p and reports whether the stream is over.
func (c *Controller) sendProgress(conn *websocket.Conn, p jobs.Progress) bool {
	if err := c.write(conn, ServerMessage{Type: "progress", Payload: p}); err != nil {
		return true
	}
	if !p.Terminal() {
		return false
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, p.State),
		time.Now().Add(wsWriteWait))
	return true
}

func (c *Controller) write(conn *websocket.Conn, msg ServerMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		c.App.Logger.Debug("WebSocket write failed", zap.Error(err))
		return err
	}
	return nil
}
