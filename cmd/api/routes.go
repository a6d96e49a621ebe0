package main

import (
	"net/http"

	"carelink/config"
	"carelink/internal/handler"
	"carelink/internal/middleware"
	"carelink/internal/server"

	"github.com/gin-gonic/gin"
)

func registerRoutes(r *gin.Engine, cfg *config.Config, calls *handler.CallHandler, incoming *server.IncomingPusher) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	auth := r.Group("/", middleware.AuthMiddleware(cfg.JWTSecret))
	{
		auth.POST("/calls", calls.Propose)
		auth.GET("/calls/history", calls.History)
		auth.GET("/calls/:id", calls.GetByID)
		auth.POST("/calls/:id/answer", calls.Answer)
		auth.POST("/calls/:id/reject", calls.Reject)
		auth.POST("/calls/:id/end", calls.End)
		auth.POST("/calls/:id/missed", calls.MarkMissed)
		auth.GET("/ws/incoming", incoming.Handle)
	}
}
