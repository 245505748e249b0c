package broadcast

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sitepulse.io/sitepulse/internal/pkg/logger"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard origins are enforced by the CORS layer in front of the
	// upgrade; the handshake itself accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSubscriber adapts a websocket connection to the Subscriber interface.
type wsSubscriber struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (s *wsSubscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		_ = s.conn.Close()
	}
}

// WSHandler upgrades the request and streams the tenant's broadcast topic
// until the client disconnects. Tenant is taken from the `tenant` query
// parameter.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.Query("tenant")
		if tenantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant query parameter is required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		sub := &wsSubscriber{conn: conn}
		hub.Register(tenantID, sub)
		logger.Debug("broadcast subscriber connected", zap.String("tenant_id", tenantID))

		defer func() {
			hub.Unregister(tenantID, sub)
			sub.Close()
			logger.Debug("broadcast subscriber disconnected", zap.String("tenant_id", tenantID))
		}()

		// Reads are discarded; the socket exists to push. The read loop
		// only detects client disconnect.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
