package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/wxcloudrun/internal/config"
)

const (
	// OpAccessToken 等是调用微信接口时使用的操作名。
	OpAccessToken       = "access_token"
	OpAddMaterial       = "add_material"
	OpDraftAdd          = "draft_add"
	OpFreepublishSubmit = "freepublish_submit"
)

const (
	labelAccessToken = "获取access_token失败"
	labelAddMaterial = "上传失败"
	labelDraftAdd    = "添加草稿失败"
	labelFreepublish = "发布草稿失败"
)

// MediaTypeVideo 等为永久素材支持的类型。
const (
	MediaTypeImage = "image"
	MediaTypeVoice = "voice"
	MediaTypeVideo = "video"
	MediaTypeThumb = "thumb"
)

const (
	msgEmptyBody        = "请求体不能为空"
	msgInvalidBody      = "请求体格式错误"
	msgInvalidMediaType = "媒体类型参数错误，支持的类型：image, voice, video, thumb"
)

// MediaFile 是待上传的素材文件。
type MediaFile struct {
	FileName    string
	ContentType string
	Content     []byte
}

// MaterialInput 描述上传永久素材的参数。
type MaterialInput struct {
	Type  string
	Media *MediaFile
	// Title 与 Introduction 仅对视频素材生效。
	Title        string
	Introduction string
}

// MaterialResult 是上传永久素材的结果，URL 仅图片素材返回。
// 字段保留微信返回的原始 JSON，缺失时序列化为 null。
type MaterialResult struct {
	MediaID json.RawMessage `json:"media_id"`
	URL     json.RawMessage `json:"url"`
}

// DraftInput 是新增草稿的文章列表，原样转发给微信。
type DraftInput struct {
	Articles []json.RawMessage
}

// DraftResult 是新增草稿的结果。
type DraftResult struct {
	MediaID    json.RawMessage `json:"media_id"`
	CreateTime json.RawMessage `json:"create_time"`
}

// PublishInput 是发布草稿的参数。
type PublishInput struct {
	MediaID string
}

// PublishResult 是发布任务的结果。
type PublishResult struct {
	PublishID json.RawMessage `json:"publish_id"`
	MsgDataID json.RawMessage `json:"msg_data_id"`
}

// WeChatService 代理公众号素材、草稿与发布接口。
type WeChatService struct {
	client      UpstreamClient
	appID       string
	appSecret   string
	attachToken bool
	validate    *validator.Validate
}

// NewWeChatService 使用显式配置构造 WeChatService。
func NewWeChatService(cfg config.WeChatConfig, client UpstreamClient) *WeChatService {
	if client == nil {
		client = NewWeChatClient(cfg.APIBase)
	}
	return &WeChatService{
		client:      client,
		appID:       strings.TrimSpace(cfg.AppID),
		appSecret:   strings.TrimSpace(cfg.AppSecret),
		attachToken: cfg.AttachToken,
		validate:    validator.New(),
	}
}

// AccessToken 每次调用都向微信重新获取 access_token，不做缓存。
func (s *WeChatService) AccessToken(ctx context.Context) (string, error) {
	if s.appID == "" || s.appSecret == "" {
		return "", invalid("未配置APPID或APPSECRET")
	}

	query := url.Values{}
	query.Set("grant_type", "client_credential")
	query.Set("appid", s.appID)
	query.Set("secret", s.appSecret)

	resp, err := s.client.Do(ctx, UpstreamRequest{
		Op:     OpAccessToken,
		Method: http.MethodGet,
		Path:   "/cgi-bin/token",
		Query:  query,
	})
	if err != nil {
		return "", err
	}
	if resp.ErrCode != 0 {
		return "", &UpstreamError{Label: labelAccessToken, Code: resp.ErrCode, Message: resp.ErrMsg}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := resp.Decode(&payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", &UpstreamError{Label: labelAccessToken, Message: "响应缺少access_token"}
	}
	return payload.AccessToken, nil
}

// AddMaterial 上传永久素材，视频素材会附带 description 字段。
func (s *WeChatService) AddMaterial(ctx context.Context, input MaterialInput) (MaterialResult, error) {
	mediaType := strings.TrimSpace(input.Type)
	if err := s.validate.Var(mediaType, "required,oneof=image voice video thumb"); err != nil {
		return MaterialResult{}, invalid(msgInvalidMediaType)
	}
	if input.Media == nil {
		return MaterialResult{}, invalid("缺少媒体文件")
	}
	if input.Media.FileName == "" {
		return MaterialResult{}, invalid("未选择文件")
	}

	form := &MultipartForm{
		FileField:   "media",
		FileName:    input.Media.FileName,
		ContentType: input.Media.ContentType,
		Content:     input.Media.Content,
	}
	if mediaType == MediaTypeVideo {
		description, err := json.Marshal(struct {
			Title        string `json:"title"`
			Introduction string `json:"introduction"`
		}{Title: input.Title, Introduction: input.Introduction})
		if err != nil {
			return MaterialResult{}, err
		}
		form.Fields = map[string]string{"description": string(description)}
	}

	query := url.Values{}
	query.Set("type", mediaType)
	if err := s.authorize(ctx, query); err != nil {
		return MaterialResult{}, err
	}

	resp, err := s.client.Do(ctx, UpstreamRequest{
		Op:     OpAddMaterial,
		Method: http.MethodPost,
		Path:   "/cgi-bin/material/add_material",
		Query:  query,
		Form:   form,
	})
	if err != nil {
		return MaterialResult{}, err
	}
	if resp.ErrCode != 0 {
		return MaterialResult{}, &UpstreamError{Label: labelAddMaterial, Code: resp.ErrCode, Message: resp.ErrMsg}
	}

	var result MaterialResult
	if err := resp.Decode(&result); err != nil {
		return MaterialResult{}, err
	}
	return result, nil
}

// DraftAdd 将文章列表添加到草稿箱。
func (s *WeChatService) DraftAdd(ctx context.Context, input DraftInput) (DraftResult, error) {
	if len(input.Articles) == 0 {
		return DraftResult{}, invalid("articles必须是非空数组")
	}

	query := url.Values{}
	if err := s.authorize(ctx, query); err != nil {
		return DraftResult{}, err
	}

	resp, err := s.client.Do(ctx, UpstreamRequest{
		Op:     OpDraftAdd,
		Method: http.MethodPost,
		Path:   "/cgi-bin/draft/add",
		Query:  query,
		JSON:   map[string]any{"articles": input.Articles},
	})
	if err != nil {
		return DraftResult{}, err
	}
	if resp.ErrCode != 0 {
		return DraftResult{}, &UpstreamError{Label: labelDraftAdd, Code: resp.ErrCode, Message: resp.ErrMsg}
	}

	var result DraftResult
	if err := resp.Decode(&result); err != nil {
		return DraftResult{}, err
	}
	return result, nil
}

// FreepublishSubmit 提交草稿发布任务。
func (s *WeChatService) FreepublishSubmit(ctx context.Context, input PublishInput) (PublishResult, error) {
	mediaID := strings.TrimSpace(input.MediaID)
	if mediaID == "" {
		return PublishResult{}, invalid("media_id不能为空")
	}

	query := url.Values{}
	if err := s.authorize(ctx, query); err != nil {
		return PublishResult{}, err
	}

	resp, err := s.client.Do(ctx, UpstreamRequest{
		Op:     OpFreepublishSubmit,
		Method: http.MethodPost,
		Path:   "/cgi-bin/freepublish/submit",
		Query:  query,
		JSON:   map[string]string{"media_id": mediaID},
	})
	if err != nil {
		return PublishResult{}, err
	}
	if resp.ErrCode != 0 {
		return PublishResult{}, &UpstreamError{Label: labelFreepublish, Code: resp.ErrCode, Message: resp.ErrMsg}
	}

	var result PublishResult
	if err := resp.Decode(&result); err != nil {
		return PublishResult{}, err
	}
	return result, nil
}

// authorize 在开启 attachToken 时为请求附加新获取的 access_token。
// 云托管环境下微信开放接口服务会自动鉴权，无需附加。
func (s *WeChatService) authorize(ctx context.Context, query url.Values) error {
	if !s.attachToken {
		return nil
	}
	token, err := s.AccessToken(ctx)
	if err != nil {
		return err
	}
	query.Set("access_token", token)
	return nil
}

// ParseDraftRequest 解析新增草稿的请求体。
func ParseDraftRequest(body []byte) (DraftInput, error) {
	params, err := parseObjectBody(body)
	if err != nil {
		return DraftInput{}, err
	}

	raw, ok := params["articles"]
	if !ok {
		return DraftInput{}, invalid("缺少articles参数")
	}

	var articles []json.RawMessage
	if err := json.Unmarshal(raw, &articles); err != nil || len(articles) == 0 {
		return DraftInput{}, invalid("articles必须是非空数组")
	}
	return DraftInput{Articles: articles}, nil
}

// ParsePublishRequest 解析发布草稿的请求体。
func ParsePublishRequest(body []byte) (PublishInput, error) {
	params, err := parseObjectBody(body)
	if err != nil {
		return PublishInput{}, err
	}

	raw, ok := params["media_id"]
	if !ok {
		return PublishInput{}, invalid("缺少media_id参数")
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return PublishInput{}, invalid(msgInvalidBody)
	}

	switch v := value.(type) {
	case nil:
		return PublishInput{}, invalid("media_id不能为空")
	case string:
		if strings.TrimSpace(v) == "" {
			return PublishInput{}, invalid("media_id不能为空")
		}
		return PublishInput{MediaID: v}, nil
	case bool:
		if !v {
			return PublishInput{}, invalid("media_id不能为空")
		}
	}
	return PublishInput{}, invalid("media_id必须是字符串")
}

func parseObjectBody(body []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, invalid(msgEmptyBody)
	}

	var params map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &params); err != nil {
		return nil, invalid(msgInvalidBody)
	}
	if len(params) == 0 {
		return nil, invalid(msgEmptyBody)
	}
	return params, nil
}
