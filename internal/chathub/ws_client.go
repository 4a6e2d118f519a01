package chathub

import (
	"encoding/json"
	"sync"
	"time"

	"codecollab/backend/internal/config"
	"codecollab/backend/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	ConnectionID string
	Conn         *websocket.Conn
	Hub          *ManagerService
	Send         chan []byte

	closeOnce sync.Once
}

func NewWebSocketClient(id string, conn *websocket.Conn, hub *ManagerService) *WebSocketClient {
	return &WebSocketClient{
		ConnectionID: id,
		Conn:         conn,
		Hub:          hub,
		Send:         make(chan []byte, config.SendBufferSize),
	}
}

func (c *WebSocketClient) GetConnectionID() string       { return c.ConnectionID }
func (c *WebSocketClient) GetSendChannel() chan<- []byte { return c.Send }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes Send, which stops writePump. readPump stops once the
// connection is closed.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// readPump decodes frames and dispatches them on this goroutine, so one
// connection's events are handled in arrival order.
func (c *WebSocketClient) readPump() {
	logger := c.Hub.logger.With(zap.String("conn", c.ConnectionID))
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			logger.Debug("undecodable frame", zap.Error(err))
			c.Hub.Router.ToConnection(c.ConnectionID, models.EventError, models.ErrorPayload{Message: "malformed frame"})
			continue
		}
		c.Hub.Dispatch(c.ConnectionID, env)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				// Router detached us.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

			// Flush whatever queued up meanwhile, one frame per message.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				next, ok := <-c.Send
				if !ok {
					c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, next); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
