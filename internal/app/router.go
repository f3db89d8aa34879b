package app

import (
	"courseforge_backend/docs"
	"courseforge_backend/internal/config"
	"courseforge_backend/internal/middleware"
	"courseforge_backend/internal/model"
	"courseforge_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/profile", c.auth.GetProfile)

		// 模块与课时
		authGroup.POST("/modules", c.module.CreateModule)
		authGroup.GET("/modules", c.module.ListModules)
		authGroup.GET("/modules/:id", c.module.GetModule)
		authGroup.DELETE("/modules/:id", c.module.DeleteModule)
		authGroup.POST("/modules/:id/generate", c.module.GenerateModule)
		authGroup.POST("/modules/:id/retry", c.module.RetryModule)
		authGroup.GET("/modules/:id/status", c.module.ModuleStatus)
		authGroup.GET("/modules/:id/stream", c.module.StreamModule)
		authGroup.GET("/modules/:id/lessons", c.module.ListLessons)
		authGroup.GET("/modules/:id/lessons/:lessonId", c.module.GetLesson)
		authGroup.GET("/modules/:id/lessons/:lessonId/content", c.module.GetLessonContent)

		// 独立课时
		authGroup.POST("/standalone-lessons", c.standalone.CreateLesson)
		authGroup.GET("/standalone-lessons", c.standalone.ListLessons)
		authGroup.GET("/standalone-lessons/:id", c.standalone.GetLesson)
		authGroup.DELETE("/standalone-lessons/:id", c.standalone.DeleteLesson)
		authGroup.GET("/standalone-lessons/:id/content", c.standalone.GetLessonContent)
		authGroup.POST("/standalone-lessons/:id/generate", c.standalone.GenerateLesson)
		authGroup.GET("/standalone-lessons/:id/status", c.standalone.LessonStatus)
		authGroup.GET("/standalone-lessons/:id/stream", c.standalone.StreamLesson)

		// 提示词模板（仅教师与管理员）
		templates := authGroup.Group("/prompt-templates")
		templates.Use(middleware.RoleMiddleware(model.Teacher))
		{
			templates.GET("", c.promptTemplate.ListTemplates)
			templates.GET("/:id", c.promptTemplate.GetTemplate)
			templates.POST("", c.promptTemplate.CreateTemplate)
			templates.PUT("/:id", c.promptTemplate.UpdateTemplate)
			templates.DELETE("/:id", c.promptTemplate.DeleteTemplate)
		}
	}
}
