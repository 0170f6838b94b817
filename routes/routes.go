package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"studo/handlers"
	"studo/middleware"
)

func SetupRouter() *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(middleware.RateLimitMiddleware())

	// Public routes
	router.POST("/api/signup", handlers.Signup)
	router.POST("/api/login", handlers.Login)
	router.GET("/api/vapid-public-key", handlers.GetVapidPublicKey)

	// Google sign-in
	router.GET("/api/google/auth-url", handlers.GetGoogleAuthURL)
	router.GET("/api/google/callback", handlers.GoogleOAuthCallback)
	router.POST("/api/google-auth", handlers.GoogleAuthWithCredential)

	protected := router.Group("/api")
	protected.Use(middleware.JWTAuthMiddleware())

	// Profile
	protected.GET("/me", handlers.GetMyProfile)
	protected.PUT("/me", handlers.UpdateMyProfile)
	protected.POST("/upload-avatar", handlers.UploadAvatar)

	// Users (the chat peer list)
	protected.GET("/users", handlers.ListUsers)

	// Projects
	protected.POST("/projects", handlers.CreateProject)
	protected.GET("/projects", handlers.ListProjects)
	protected.GET("/projects/:id", handlers.GetProject)
	protected.PUT("/projects/:id", handlers.UpdateProject)
	protected.DELETE("/projects/:id", handlers.DeleteProject)

	// Tasks
	protected.POST("/projects/:id/tasks", handlers.CreateTask)
	protected.GET("/projects/:id/tasks", handlers.ListTasks)
	protected.PUT("/tasks/:id", handlers.UpdateTask)
	protected.DELETE("/tasks/:id", handlers.DeleteTask)

	// Messages
	protected.POST("/messages", handlers.SendMessage)
	protected.GET("/messages/:peer", handlers.GetMessages)

	// Push subscriptions
	protected.POST("/subscribe", handlers.SubscribePush)

	router.NoRoute(func(c *gin.Context) {
		if len(c.Request.URL.Path) >= 4 && c.Request.URL.Path[:4] == "/api" {
			c.JSON(404, gin.H{
				"error": "Endpoint not found",
				"path":  c.Request.URL.Path,
			})
			return
		}
		c.Next()
	})

	return router
}
