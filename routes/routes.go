package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketsync/config"
	"marketsync/controllers"
	"marketsync/middleware"
	"marketsync/scheduler"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, cfg *config.Config, s *scheduler.Scheduler) *controllers.StatusHub {
	taskController := controllers.NewTaskController(s)
	pluginController := controllers.NewPluginController(s)
	statusController := controllers.NewStatusController(s)
	authController := controllers.NewAuthController(cfg)
	statusHub := controllers.NewStatusHub(s)

	// API v1 group
	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		auth.Use(middleware.LoginRateLimitMiddleware())
		{
			auth.POST("/login", authController.Login)
		}

		// read-only endpoints
		api.GET("/status", statusController.GetStatus)
		api.GET("/status/tasks", statusController.GetTaskStates)
		api.GET("/plugins", pluginController.ListPlugins)
		api.GET("/plugins/:type", pluginController.ListPluginsByType)
		api.GET("/ws/status", statusHub.HandleWebSocket)

		// task management requires authentication
		tasks := api.Group("/tasks")
		tasks.Use(middleware.JWTAuthMiddleware())
		{
			tasks.GET("", taskController.ListTasks)
			tasks.POST("", taskController.CreateTask)
			tasks.GET("/:name", taskController.GetTask)
			tasks.DELETE("/:name", taskController.DeleteTask)
			tasks.POST("/:name/start", taskController.StartTask)
			tasks.POST("/:name/stop", taskController.StopTask)
			tasks.GET("/:name/status", taskController.GetTaskStatus)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "marketsync API is running",
		})
	})

	return statusHub
}
