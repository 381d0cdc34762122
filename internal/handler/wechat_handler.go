package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wxcloudrun/internal/service"
)

// GetAccessToken 返回新获取的 access_token 原始字符串。
func (a *API) GetAccessToken(c *gin.Context) {
	token, err := a.wechat.AccessToken(c.Request.Context())
	if err != nil {
		respondProxyError(c, err)
		return
	}
	c.String(http.StatusOK, token)
}

// AddMaterial 上传永久素材。
func (a *API) AddMaterial(c *gin.Context) {
	input := service.MaterialInput{
		Type:         c.PostForm("type"),
		Title:        c.PostForm("title"),
		Introduction: c.PostForm("introduction"),
	}

	header, err := c.FormFile("media")
	switch {
	case err == nil:
		content, err := readUploadedFile(header)
		if err != nil {
			respondProxyError(c, fmt.Errorf("读取媒体文件失败: %w", err))
			return
		}
		input.Media = &service.MediaFile{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     content,
		}
	case hasFormValue(c, "media"):
		// filename 为空的 media 段会被解析为普通字段。
		input.Media = &service.MediaFile{}
	}

	result, err := a.wechat.AddMaterial(c.Request.Context(), input)
	if err != nil {
		respondProxyError(c, err)
		return
	}
	respondSuccess(c, result)
}

// DraftAdd 新增草稿。
func (a *API) DraftAdd(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondProxyError(c, fmt.Errorf("读取请求体失败: %w", err))
		return
	}

	input, err := service.ParseDraftRequest(body)
	if err != nil {
		respondProxyError(c, err)
		return
	}

	result, err := a.wechat.DraftAdd(c.Request.Context(), input)
	if err != nil {
		respondProxyError(c, err)
		return
	}
	respondSuccess(c, result)
}

// FreepublishSubmit 发布草稿。
func (a *API) FreepublishSubmit(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondProxyError(c, fmt.Errorf("读取请求体失败: %w", err))
		return
	}

	input, err := service.ParsePublishRequest(body)
	if err != nil {
		respondProxyError(c, err)
		return
	}

	result, err := a.wechat.FreepublishSubmit(c.Request.Context(), input)
	if err != nil {
		respondProxyError(c, err)
		return
	}
	respondSuccess(c, result)
}

func hasFormValue(c *gin.Context, key string) bool {
	form := c.Request.MultipartForm
	if form == nil {
		return false
	}
	_, ok := form.Value[key]
	return ok
}

func readUploadedFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
