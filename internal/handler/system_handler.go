package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ShowIndex 返回首页。
func (a *API) ShowIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", a.landing)
}

// HealthCheck 提供云托管与监控系统使用的健康检查端点。
func (a *API) HealthCheck(c *gin.Context) {
	if a.db == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"database": "memory",
		})
		return
	}

	sqlDB, err := a.db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "database handle unavailable",
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": "database unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": "up",
	})
}
