// This file implements an optional debug websocket transport alongside
// the SSE default, for operators who want to inspect Hub push traffic
// with generic websocket tooling. It is never the Client Runtime's
// transport of choice: SSE is one-way and simpler for a push-only
// channel, but the wire protocol does not care which carries it.
package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/pkg/wire"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var debugUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSClient is the websocket-backed alternative to SSEClient. It
// satisfies internal/hub/registry.Downstream identically.
type WSClient struct {
	agentID   string
	sessionID string
	conn      *websocket.Conn

	send      chan *wire.Frame
	closeOnce sync.Once

	mu          sync.Mutex
	closeReason string

	logger *logger.Logger
}

// UpgradeWSClient upgrades r/w to a websocket connection and returns a
// WSClient ready to register in the Session Registry.
func UpgradeWSClient(w http.ResponseWriter, r *http.Request, agentID, sessionID string, log *logger.Logger) (*WSClient, error) {
	conn, err := debugUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &WSClient{
		agentID:   agentID,
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan *wire.Frame, sendQueueCap),
		logger: log.WithFields(
			zap.String("component", "ws-debug-transport"),
			zap.String("agent_id", agentID),
			zap.String("session_id", sessionID),
		),
	}, nil
}

// Push enqueues frame for delivery. Mirrors SSEClient.Push's never-block,
// drop-session-on-saturation policy.
func (c *WSClient) Push(frame *wire.Frame) bool {
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("push channel saturated, dropping session")
		c.Close("Backpressure")
		return false
	}
}

// Close terminates the connection with reason. Idempotent.
func (c *WSClient) Close(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeReason = reason
		c.mu.Unlock()
		closing, _ := wire.NewNotification(wire.KindSessionClosed, map[string]string{"reason": reason})
		_ = c.writeJSON(closing)
		_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
		c.conn.Close()
	})
}

// ReadPump discards any client->server frames (the Hub's Tool Surface is
// reached exclusively over HTTP POST/GET; this transport is push-only)
// but must still run to keep pong handling alive and to detect a dead
// peer.
func (c *WSClient) ReadPump(onDisconnect func()) {
	defer onDisconnect()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// WritePump drains the send channel to the connection and pings on a
// fixed cadence until Close is called or a write fails.
func (c *WSClient) WritePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.writeJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) writeJSON(frame *wire.Frame) error {
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(frame)
}
