package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/chatctx/internal/middleware"
)

type RouterDeps struct {
	Chats      *ChatHandler
	JWTSecret  []byte
	SendWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", func(c *gin.Context) {
		c.String(200, "ok")
	})

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.POST("/chats", deps.Chats.Create)
	authGroup.GET("/chats", deps.Chats.List)
	authGroup.GET("/chats/:id", deps.Chats.Get)
	authGroup.PUT("/chats/:id", deps.Chats.Rename)
	authGroup.DELETE("/chats/:id", deps.Chats.Delete)
	authGroup.POST("/chats/:id/messages", middleware.RateLimit(deps.SendWindow), deps.Chats.SendMessage)
	authGroup.POST("/chats/:id/context", deps.Chats.Context)
	authGroup.POST("/chats/:id/reindex", deps.Chats.Reindex)
}
