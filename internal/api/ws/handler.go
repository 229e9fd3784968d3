package ws

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/presence"
)

const (
	principalIDKey = "ws_principal_id"
	roleKey        = "ws_role"

	controlWriteWait = 10 * time.Second
)

// wsConn adapts a websocket connection to the presence transport contract.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteText(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// Handler upgrades authenticated requests to websocket connections and
// registers them with the presence registry.
type Handler struct {
	registry *presence.Registry
	authMw   *auth.Middleware
	logger   *zap.Logger
}

// NewHandler constructs handler.
func NewHandler(registry *presence.Registry, authMw *auth.Middleware, logger *zap.Logger) *Handler {
	return &Handler{registry: registry, authMw: authMw, logger: logger}
}

// Upgrade handles GET /ws. The credential travels as a query parameter
// since browser websocket clients cannot set headers; it passes the same
// acceptance sequence as any HTTP request before the upgrade happens.
func (h *Handler) Upgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			return fiber.ErrUnauthorized
		}
		_, principal, err := h.authMw.Authenticate(c.Context(), token)
		if err != nil {
			return err
		}

		c.Locals(principalIDKey, principal.ID)
		c.Locals(roleKey, principal.Role)
		return websocket.New(h.serve)(c)
	}
}

func (h *Handler) serve(conn *websocket.Conn) {
	principalID := conn.Locals(principalIDKey).(string)
	role := conn.Locals(roleKey).(domain.Role)

	adapted := &wsConn{conn: conn}
	conn.SetPongHandler(func(string) error {
		h.registry.MarkAlive(principalID)
		return nil
	})

	h.registry.Register(principalID, role, adapted)
	defer h.registry.Unregister(principalID, adapted)

	h.logger.Info("connection registered", zap.String("principal_id", principalID))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.logger.Debug("connection closed",
				zap.String("principal_id", principalID), zap.Error(err))
			return
		}
		// any inbound frame counts as liveness
		h.registry.MarkAlive(principalID)
	}
}
