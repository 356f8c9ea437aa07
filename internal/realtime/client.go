package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // kiosks connect from file:// and local origins
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Renderer status events forwarded to the active media bridge.
const (
	StatusMediaLoaded  = "media_loaded"
	StatusMediaError   = "media_error"
	StatusPlayOK       = "play_ok"
	StatusPlayBlocked  = "play_blocked"
	StatusMediaEnded   = "media_ended"
	StatusPlayProgress = "playback_progress"
)

// Client represents a single renderer connection for a display.
type Client struct {
	ID        string
	DisplayID uuid.UUID
	Role      string
	hub       *Hub
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop. Renderers
// authenticate with a device token in the query string.
func ServeWs(hub *Hub, logger *zap.Logger, validate func(token string) (subject, role string, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		displayIDStr := c.Query("display_id")
		token := c.Query("token")
		if displayIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display_id and token required"})
			return
		}
		displayID, err := uuid.Parse(displayIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid display_id"})
			return
		}
		subject, role, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		// Device tokens are scoped to one display.
		if role == "display" && subject != displayID.String() {
			c.JSON(http.StatusForbidden, gin.H{"error": "token not valid for display"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New().String(),
			DisplayID: displayID,
			Role:      role,
			hub:       hub,
			conn:      conn,
			send:      make(chan WSMessage, 256),
			logger:    logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case StatusMediaLoaded, StatusMediaError, StatusPlayOK, StatusPlayBlocked,
			StatusMediaEnded, StatusPlayProgress:
			c.hub.DispatchStatus(c.DisplayID, msg.Event, msg.Data)
		case "hello":
			c.hub.BroadcastToDisplayAndPublish(c.DisplayID, "renderer_online", map[string]string{
				"client_id": c.ID,
			})
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
