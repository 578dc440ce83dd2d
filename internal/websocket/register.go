package websocket

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
)

// Handler returns an echo.HandlerFunc that upgrades the request and attaches
// the client to the conversation named in the route.
func (b *Bridge) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.Request().Header.Get("X-User-ID")
		if userID == "" {
			return c.String(http.StatusUnauthorized, "missing user identity")
		}
		conversationID := c.Param("id")

		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			InsecureSkipVerify: true, // In production, check origin.
		})
		if err != nil {
			slog.Error("Failed to upgrade connection to WebSocket", "error", err)
			return err
		}

		client := b.NewClient(conn, userID, conversationID)
		go client.Serve()
		return nil
	}
}

// RegisterRoutes attaches the WebSocket endpoint to the router.
func (b *Bridge) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/conversations/:id", b.Handler())
}
