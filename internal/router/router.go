package router

import (
	"github.com/gin-gonic/gin"
	"github.com/wxcloudrun/internal/handler"
	"github.com/wxcloudrun/internal/metrics"
	"github.com/wxcloudrun/internal/middleware"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(), metrics.Handler())

	r.GET("/", api.ShowIndex)
	r.GET("/healthz", api.HealthCheck)
	r.GET("/metrics", metrics.Exposer())

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/count", api.UpdateCount)
		apiGroup.GET("/count", api.GetCount)

		apiGroup.GET("/access_token", api.GetAccessToken)
		apiGroup.POST("/add_material", api.AddMaterial)
		apiGroup.POST("/draft_add", api.DraftAdd)
		apiGroup.POST("/freepublish_submit", api.FreepublishSubmit)
	}

	return r
}
