package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"

	"github.com/wxcloudrun/internal/metrics"
)

const maxUpstreamResponseBytes = 1 << 20

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// UpstreamRequest 描述一次发往微信接口的调用。
type UpstreamRequest struct {
	// Op 是本地操作名，用于日志与指标。
	Op     string
	Method string
	Path   string
	Query  url.Values
	// JSON 非空时作为 application/json 请求体。
	JSON any
	// Form 非空时作为 multipart/form-data 请求体，优先于 JSON。
	Form *MultipartForm
}

// MultipartForm 是一个文件字段加若干普通字段的表单。
type MultipartForm struct {
	Fields      map[string]string
	FileField   string
	FileName    string
	ContentType string
	Content     []byte
}

// UpstreamResponse 保存微信接口的原始响应以及公共的 errcode/errmsg。
type UpstreamResponse struct {
	ErrCode int
	ErrMsg  string
	Body    []byte
}

// Decode 将响应体解析到 dst。
func (r UpstreamResponse) Decode(dst any) error {
	if err := json.Unmarshal(r.Body, dst); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

// UpstreamClient 负责发送请求并返回解析后的 JSON。
type UpstreamClient interface {
	Do(ctx context.Context, req UpstreamRequest) (UpstreamResponse, error)
}

// WeChatClient 通过 HTTP 调用微信公众号接口。
type WeChatClient struct {
	http    httpDoer
	baseURL string
}

// NewWeChatClient 构造使用默认 http.Client 的客户端。
func NewWeChatClient(baseURL string) *WeChatClient {
	c := &WeChatClient{http: &http.Client{}}
	c.SetBaseURL(baseURL)
	return c
}

// SetHTTPClient 替换底层 HTTP 客户端，主要面向测试场景。
func (c *WeChatClient) SetHTTPClient(client httpDoer) {
	if client == nil {
		c.http = &http.Client{}
		return
	}
	c.http = client
}

// SetBaseURL 覆盖微信接口的基础地址。
func (c *WeChatClient) SetBaseURL(base string) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = "https://api.weixin.qq.com"
	}
	c.baseURL = base
}

// Do 发送请求并解析公共错误字段，非零 errcode 由调用方处理。
func (c *WeChatClient) Do(ctx context.Context, req UpstreamRequest) (UpstreamResponse, error) {
	resp, err := c.do(ctx, req)
	switch {
	case err != nil:
		metrics.UpstreamRequests.WithLabelValues(req.Op, metrics.UpstreamError).Inc()
	case resp.ErrCode != 0:
		metrics.UpstreamRequests.WithLabelValues(req.Op, metrics.UpstreamErrCode).Inc()
	default:
		metrics.UpstreamRequests.WithLabelValues(req.Op, metrics.UpstreamOK).Inc()
	}
	return resp, err
}

func (c *WeChatClient) do(ctx context.Context, req UpstreamRequest) (UpstreamResponse, error) {
	body, contentType, err := encodeUpstreamBody(req)
	if err != nil {
		return UpstreamResponse{}, fmt.Errorf("构造 %s 请求失败: %w", req.Op, err)
	}

	endpoint := c.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return UpstreamResponse{}, fmt.Errorf("创建 %s 请求失败: %w", req.Op, err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	client := c.http
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return UpstreamResponse{}, fmt.Errorf("请求 %s 接口失败: %w", req.Op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamResponseBytes))
	if err != nil {
		return UpstreamResponse{}, fmt.Errorf("读取 %s 响应失败: %w", req.Op, err)
	}

	var envelope struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		logUpstreamExchange(req, resp.StatusCode, -1, respBody)
		return UpstreamResponse{}, fmt.Errorf("解析 %s 响应失败 (%s): %w", req.Op, resp.Status, err)
	}
	logUpstreamExchange(req, resp.StatusCode, envelope.ErrCode, respBody)

	if resp.StatusCode >= http.StatusBadRequest && envelope.ErrCode == 0 {
		return UpstreamResponse{}, fmt.Errorf("%s 接口返回错误：%s", req.Op, resp.Status)
	}

	return UpstreamResponse{ErrCode: envelope.ErrCode, ErrMsg: envelope.ErrMsg, Body: respBody}, nil
}

func encodeUpstreamBody(req UpstreamRequest) (io.Reader, string, error) {
	if req.Form != nil {
		return encodeMultipart(req.Form)
	}
	if req.JSON != nil {
		payload, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(payload), "application/json", nil
	}
	return nil, "", nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(form *MultipartForm) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	field := form.FileField
	if field == "" {
		field = "media"
	}
	contentType := form.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(form.FileName)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(form.Content); err != nil {
		return nil, "", err
	}

	keys := make([]string, 0, len(form.Fields))
	for key := range form.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := writer.WriteField(key, form.Fields[key]); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
