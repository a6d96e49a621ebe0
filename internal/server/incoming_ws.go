package server

import (
	"net/http"
	"time"

	"carelink/internal/middleware"
	"carelink/internal/signaling"
	"carelink/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// IncomingPusher bridges SubscribeIncoming to a websocket so a connected
// client sees incoming-call offers in real time. The subscription is
// cancelled as soon as the socket goes away, so a re-entering screen
// never accumulates duplicate prompts.
type IncomingPusher struct {
	signaling *signaling.Service
	log       *logger.Logger
	upgrader  websocket.Upgrader
}

func NewIncomingPusher(sig *signaling.Service, log *logger.Logger) *IncomingPusher {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &IncomingPusher{
		signaling: sig,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades GET /ws/incoming.
func (p *IncomingPusher) Handle(c *gin.Context) {
	userID := middleware.UserID(c)
	conn, err := p.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if p.log != nil {
			p.log.Errorf("websocket upgrade: %v", err)
		}
		return
	}
	defer conn.Close()

	sub, err := p.signaling.SubscribeIncoming(c.Request.Context(), userID)
	if err != nil {
		if p.log != nil {
			p.log.Errorf("incoming subscription for %s: %v", userID, err)
		}
		return
	}
	defer sub.Cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case rec, ok := <-sub.Records():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
