package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/wxcloudrun/internal/middleware"
	"github.com/wxcloudrun/internal/service"
)

const errCodeFailed = -1

// envelope 是所有 JSON 接口统一的返回结构。
type envelope struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
	Data    any    `json:"data,omitempty"`
}

func respondSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Data: data})
}

func respondEmpty(c *gin.Context) {
	c.JSON(http.StatusOK, envelope{})
}

func respondInvalid(c *gin.Context, message string) {
	c.JSON(http.StatusOK, envelope{ErrCode: errCodeFailed, ErrMsg: message})
}

// respondError 将业务错误映射为统一的错误返回：
// 输入错误与上游错误直接透出信息，其余错误视为服务器内部错误并返回 500。
func respondError(c *gin.Context, err error) {
	respondErrorStatus(c, err, http.StatusInternalServerError)
}

// respondProxyError 用于微信代理接口，内部错误同样以 200 返回错误信封。
func respondProxyError(c *gin.Context, err error) {
	respondErrorStatus(c, err, http.StatusOK)
}

func respondErrorStatus(c *gin.Context, err error, internalStatus int) {
	var (
		validationErr *service.ValidationError
		upstreamErr   *service.UpstreamError
	)
	switch {
	case errors.As(err, &validationErr):
		respondInvalid(c, validationErr.Error())
	case errors.As(err, &upstreamErr):
		respondInvalid(c, upstreamErr.Error())
	default:
		_ = c.Error(err)
		log.WithFields(log.Fields{
			"path":       c.FullPath(),
			"request_id": c.GetString(middleware.RequestIDKey),
		}).WithError(err).Error("request failed")
		c.JSON(internalStatus, envelope{ErrCode: errCodeFailed, ErrMsg: "服务器内部错误: " + err.Error()})
	}
}

// bindJSON 解析 JSON 请求体，空请求体视为空对象。
func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		respondInvalid(c, message)
		return false
	}
	return true
}
