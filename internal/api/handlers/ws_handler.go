package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/internal/events"
	"github.com/yoockh/veriview/internal/repositories"
	"github.com/yoockh/veriview/internal/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// WSHandler streams session events to a websocket client.
type WSHandler struct {
	sessions repositories.SessionRepository
	bus      events.Subscriber
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions repositories.SessionRepository, bus events.Subscriber, allowedOrigins []string, log *logrus.Logger) *WSHandler {
	allowed := map[string]struct{}{}
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &WSHandler{
		sessions: sessions,
		bus:      bus,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

type wsClientMsg struct {
	Type string `json:"type"` // ping | close
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) write(kind int, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteMessage(kind, b)
}

func (h *WSHandler) SessionWS(c *gin.Context) {
	const op = "WSHandler.SessionWS"

	sessionID := c.Param("id")
	if sessionID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing session id", nil))
		return
	}
	if _, err := h.sessions.Get(c.Request.Context(), sessionID); err != nil {
		writeError(c, utils.E(utils.CodeNotFound, op, "session not found", err))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	feed, unsubscribe, err := h.bus.Subscribe(ctx, sessionID)
	if err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "event stream unavailable", err))
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response
		return
	}
	defer conn.Close()
	wc := &wsConn{c: conn}
	log := h.log.WithField("session_id", sessionID)
	log.Debug("event stream opened")

	// reader: handles control messages and notices disconnects
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = wc.write(websocket.TextMessage, []byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"invalid json"}`))
				continue
			}
			switch msg.Type {
			case "ping":
				_ = wc.write(websocket.TextMessage, []byte(`{"type":"pong"}`))
			case "close":
				return
			default:
				_ = wc.write(websocket.TextMessage, []byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"unknown message type"}`))
			}
		}
	}()

	// writer: event bus -> WS
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := wc.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case b, ok := <-feed:
			if !ok {
				_ = wc.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream ended"))
				return
			}
			if err := wc.write(websocket.TextMessage, b); err != nil {
				log.WithError(err).Debug("event stream write failed")
				return
			}
		}
	}
}
