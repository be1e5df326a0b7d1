package handlers

import (
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/ytget/media-taskd/internal/logger"
	"github.com/ytget/media-taskd/internal/model"
	"github.com/ytget/media-taskd/internal/notify"
)

const socketWriteTimeout = 10 * time.Second

// SocketHandler streams task snapshots and notification events to one
// websocket connection. The first frame is the current snapshot.
type SocketHandler struct {
	service     TaskService
	broadcaster *notify.Broadcaster
	logger      *logger.Logger
}

func NewSocketHandler(service TaskService, broadcaster *notify.Broadcaster, logger *logger.Logger) *SocketHandler {
	return &SocketHandler{service: service, broadcaster: broadcaster, logger: logger}
}

func (h *SocketHandler) Handle(c *websocket.Conn) {
	client := h.broadcaster.Register()
	defer h.broadcaster.Unregister(client)

	unsubscribe := h.service.Subscribe(func(tasks []model.DownloadTask) {
		client.Send(notify.Message{Type: notify.MessageTasks, Tasks: tasks})
	})
	defer unsubscribe()

	h.logger.Infow("socket_connected", "remote", c.RemoteAddr().String())

	// incoming frames are ignored; a read error means the peer went away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case m, ok := <-client.C():
			if !ok {
				h.logger.Warnw("socket_dropped", "remote", c.RemoteAddr().String())
				return
			}
			c.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
			if err := c.WriteJSON(m); err != nil {
				h.logger.Warnw("socket_write_failed", "error", err)
				return
			}
		case <-closed:
			h.logger.Infow("socket_closed", "remote", c.RemoteAddr().String())
			return
		}
	}
}
