package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	api := s.E.Group("/api/conversations/:id")

	api.GET("/messages", s.ListMessages)
	api.POST("/messages", s.CreateMessage)
	api.POST("/messages/:messageID/delivered", s.MarkDelivered)
	api.POST("/messages/:messageID/reactions", s.ToggleReaction)
	api.POST("/read", s.MarkConversationRead)
	api.POST("/typing", s.TypingPing)
	api.GET("/search", s.SearchMessages)
	api.POST("/participants", s.AddParticipant)
	api.DELETE("/participants/:userID", s.RemoveParticipant)

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}
