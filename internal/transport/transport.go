package transport

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/HarshTuring/docklens/internal/pkg/authclient"
	"github.com/HarshTuring/docklens/internal/transport/middleware"
)

func InitRoutes(imgHandler *ImageHandler, auth authclient.Client) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	images := router.Group("/images")
	{
		images.POST("/upload", middleware.Timeout(30*time.Second), imgHandler.UploadImage)

		// Трансформации за авторизацией; remove_background может работать
		// заметно дольше остальных операций, таймаут здесь щедрый
		protected := images.Group("", middleware.Auth(auth))
		protected.POST("/transform", middleware.Timeout(2*time.Minute), imgHandler.TransformImage)
		protected.POST("/transform-url", middleware.Timeout(2*time.Minute), imgHandler.TransformImageFromURL)

		images.GET("/:hash/versions", imgHandler.ListVersions)
		images.GET("/history", imgHandler.History)
	}

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/login", imgHandler.Login)
		authRoutes.POST("/refresh", imgHandler.Refresh)
		authRoutes.POST("/logout", imgHandler.Logout)
	}

	// Health check
	router.GET("/health", imgHandler.Health)

	return router
}
