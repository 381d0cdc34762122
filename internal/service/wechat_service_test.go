package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wxcloudrun/internal/config"
)

type recordingUpstream struct {
	calls     []UpstreamRequest
	responses map[string]string
	err       error
}

func (r *recordingUpstream) Do(ctx context.Context, req UpstreamRequest) (UpstreamResponse, error) {
	r.calls = append(r.calls, req)
	if r.err != nil {
		return UpstreamResponse{}, r.err
	}
	body := r.responses[req.Op]
	if body == "" {
		body = `{}`
	}
	var envelope struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return UpstreamResponse{}, err
	}
	return UpstreamResponse{ErrCode: envelope.ErrCode, ErrMsg: envelope.ErrMsg, Body: []byte(body)}, nil
}

func newTestWeChatService(upstream *recordingUpstream, attach bool) *WeChatService {
	return NewWeChatService(config.WeChatConfig{AppID: "wx-app", AppSecret: "wx-secret", AttachToken: attach}, upstream)
}

func requireValidation(t *testing.T, err error, message string) {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	require.Equal(t, message, verr.Message)
}

func requireJSON(t *testing.T, expected string, value any) {
	t.Helper()
	encoded, err := json.Marshal(value)
	require.NoError(t, err)
	require.JSONEq(t, expected, string(encoded))
}

func TestAccessTokenSuccess(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{
		OpAccessToken: `{"access_token":"TOKEN","expires_in":7200}`,
	}}
	svc := newTestWeChatService(upstream, false)

	token, err := svc.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "TOKEN", token)

	require.Len(t, upstream.calls, 1)
	call := upstream.calls[0]
	require.Equal(t, "/cgi-bin/token", call.Path)
	require.Equal(t, "client_credential", call.Query.Get("grant_type"))
	require.Equal(t, "wx-app", call.Query.Get("appid"))
	require.Equal(t, "wx-secret", call.Query.Get("secret"))
}

func TestAccessTokenIsNotCached(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{OpAccessToken: `{"access_token":"T"}`}}
	svc := newTestWeChatService(upstream, false)

	for i := 0; i < 2; i++ {
		_, err := svc.AccessToken(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, upstream.calls, 2)
}

func TestAccessTokenUpstreamError(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{
		OpAccessToken: `{"errcode":40001,"errmsg":"invalid credential"}`,
	}}
	svc := newTestWeChatService(upstream, false)

	token, err := svc.AccessToken(context.Background())
	require.Empty(t, token)

	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	require.Equal(t, 40001, uerr.Code)
	require.Contains(t, err.Error(), "invalid credential")
	require.Contains(t, err.Error(), "获取access_token失败")
}

func TestAccessTokenMissingTokenField(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{OpAccessToken: `{"expires_in":7200}`}}
	svc := newTestWeChatService(upstream, false)

	_, err := svc.AccessToken(context.Background())
	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
}

func TestAccessTokenRequiresCredentials(t *testing.T) {
	upstream := &recordingUpstream{}
	svc := NewWeChatService(config.WeChatConfig{AppID: "wx-app"}, upstream)

	_, err := svc.AccessToken(context.Background())
	requireValidation(t, err, "未配置APPID或APPSECRET")
	require.Empty(t, upstream.calls)
}

func TestAddMaterialRejectsBeforeUpstream(t *testing.T) {
	file := &MediaFile{FileName: "a.png", ContentType: "image/png", Content: []byte("png")}
	tests := []struct {
		name    string
		input   MaterialInput
		message string
	}{
		{name: "missing type", input: MaterialInput{Media: file}, message: msgInvalidMediaType},
		{name: "unsupported type", input: MaterialInput{Type: "news", Media: file}, message: msgInvalidMediaType},
		{name: "missing media", input: MaterialInput{Type: MediaTypeImage}, message: "缺少媒体文件"},
		{name: "empty filename", input: MaterialInput{Type: MediaTypeImage, Media: &MediaFile{}}, message: "未选择文件"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := &recordingUpstream{}
			svc := newTestWeChatService(upstream, true)

			_, err := svc.AddMaterial(context.Background(), tt.input)
			requireValidation(t, err, tt.message)
			require.Empty(t, upstream.calls)
		})
	}
}

func TestAddMaterialImage(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{
		OpAddMaterial: `{"media_id":"MEDIA","url":"http://mmbiz.qpic.cn/x.png"}`,
	}}
	svc := newTestWeChatService(upstream, false)

	result, err := svc.AddMaterial(context.Background(), MaterialInput{
		Type:  MediaTypeImage,
		Media: &MediaFile{FileName: "a.png", ContentType: "image/png", Content: []byte("png")},
	})
	require.NoError(t, err)
	requireJSON(t, `{"media_id":"MEDIA","url":"http://mmbiz.qpic.cn/x.png"}`, result)

	require.Len(t, upstream.calls, 1)
	call := upstream.calls[0]
	require.Equal(t, "/cgi-bin/material/add_material", call.Path)
	require.Equal(t, MediaTypeImage, call.Query.Get("type"))
	require.False(t, call.Query.Has("access_token"))
	require.NotNil(t, call.Form)
	require.Equal(t, "media", call.Form.FileField)
	require.Equal(t, "a.png", call.Form.FileName)
	require.Empty(t, call.Form.Fields)
}

func TestAddMaterialVoiceWithoutURL(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{OpAddMaterial: `{"media_id":"V1"}`}}
	svc := newTestWeChatService(upstream, false)

	result, err := svc.AddMaterial(context.Background(), MaterialInput{
		Type:  MediaTypeVoice,
		Media: &MediaFile{FileName: "a.mp3", Content: []byte("mp3")},
	})
	require.NoError(t, err)
	requireJSON(t, `{"media_id":"V1","url":null}`, result)
}

func TestAddMaterialVideoCarriesDescription(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{OpAddMaterial: `{"media_id":"VIDEO"}`}}
	svc := newTestWeChatService(upstream, false)

	_, err := svc.AddMaterial(context.Background(), MaterialInput{
		Type:         MediaTypeVideo,
		Media:        &MediaFile{FileName: "clip.mp4", Content: []byte("mp4")},
		Title:        "标题",
		Introduction: "简介",
	})
	require.NoError(t, err)

	form := upstream.calls[0].Form
	require.JSONEq(t, `{"title":"标题","introduction":"简介"}`, form.Fields["description"])
}

func TestAddMaterialUpstreamError(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{OpAddMaterial: `{"errcode":40004,"errmsg":"invalid media type"}`}}
	svc := newTestWeChatService(upstream, false)

	_, err := svc.AddMaterial(context.Background(), MaterialInput{
		Type:  MediaTypeVoice,
		Media: &MediaFile{FileName: "a.mp3"},
	})
	require.EqualError(t, err, "上传失败: invalid media type")
}

func TestDraftAddSuccess(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{OpDraftAdd: `{"media_id":"M1","create_time":123}`}}
	svc := newTestWeChatService(upstream, false)

	input, err := ParseDraftRequest([]byte(`{"articles":[{"title":"T","content":"<p>hi</p>"}]}`))
	require.NoError(t, err)

	result, err := svc.DraftAdd(context.Background(), input)
	require.NoError(t, err)
	requireJSON(t, `{"media_id":"M1","create_time":123}`, result)

	sent, err := json.Marshal(upstream.calls[0].JSON)
	require.NoError(t, err)
	require.JSONEq(t, `{"articles":[{"title":"T","content":"<p>hi</p>"}]}`, string(sent))
}

func TestDraftAddEmptyUpstreamMessage(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{OpDraftAdd: `{"errcode":45009}`}}
	svc := newTestWeChatService(upstream, false)

	_, err := svc.DraftAdd(context.Background(), DraftInput{Articles: []json.RawMessage{json.RawMessage(`{}`)}})
	require.EqualError(t, err, "添加草稿失败: 未知错误")
}

func TestDraftAddRejectsEmptyArticles(t *testing.T) {
	upstream := &recordingUpstream{}
	svc := newTestWeChatService(upstream, false)

	_, err := svc.DraftAdd(context.Background(), DraftInput{})
	requireValidation(t, err, "articles必须是非空数组")
	require.Empty(t, upstream.calls)
}

func TestParseDraftRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "empty body", body: "", message: msgEmptyBody},
		{name: "null body", body: "null", message: msgEmptyBody},
		{name: "empty object", body: "{}", message: msgEmptyBody},
		{name: "invalid json", body: "{", message: msgInvalidBody},
		{name: "missing articles", body: `{"foo":1}`, message: "缺少articles参数"},
		{name: "articles not list", body: `{"articles":{"title":"x"}}`, message: "articles必须是非空数组"},
		{name: "articles empty", body: `{"articles":[]}`, message: "articles必须是非空数组"},
		{name: "articles null", body: `{"articles":null}`, message: "articles必须是非空数组"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDraftRequest([]byte(tt.body))
			requireValidation(t, err, tt.message)
		})
	}
}

func TestFreepublishSubmit(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{
		OpFreepublishSubmit: `{"errcode":0,"errmsg":"ok","publish_id":"100000001","msg_data_id":2247483817}`,
	}}
	svc := newTestWeChatService(upstream, false)

	input, err := ParsePublishRequest([]byte(`{"media_id":"DRAFT"}`))
	require.NoError(t, err)

	result, err := svc.FreepublishSubmit(context.Background(), input)
	require.NoError(t, err)
	requireJSON(t, `{"publish_id":"100000001","msg_data_id":2247483817}`, result)
	require.Equal(t, map[string]string{"media_id": "DRAFT"}, upstream.calls[0].JSON)
}

func TestFreepublishSubmitKeepsNumericPublishID(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{
		OpFreepublishSubmit: `{"errcode":0,"errmsg":"ok","publish_id":100000001,"msg_data_id":2247483863}`,
	}}
	svc := newTestWeChatService(upstream, false)

	result, err := svc.FreepublishSubmit(context.Background(), PublishInput{MediaID: "DRAFT"})
	require.NoError(t, err)
	requireJSON(t, `{"publish_id":100000001,"msg_data_id":2247483863}`, result)
}

func TestParsePublishRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "empty body", body: " ", message: msgEmptyBody},
		{name: "missing media_id", body: `{"title":"x"}`, message: "缺少media_id参数"},
		{name: "empty media_id", body: `{"media_id":""}`, message: "media_id不能为空"},
		{name: "null media_id", body: `{"media_id":null}`, message: "media_id不能为空"},
		{name: "numeric media_id", body: `{"media_id":12}`, message: "media_id必须是字符串"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePublishRequest([]byte(tt.body))
			requireValidation(t, err, tt.message)
		})
	}
}

func TestAttachTokenFetchesTokenPerCall(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{
		OpAccessToken:       `{"access_token":"FRESH"}`,
		OpFreepublishSubmit: `{"publish_id":"1","msg_data_id":2}`,
	}}
	svc := newTestWeChatService(upstream, true)

	for i := 0; i < 2; i++ {
		_, err := svc.FreepublishSubmit(context.Background(), PublishInput{MediaID: "DRAFT"})
		require.NoError(t, err)
	}

	require.Len(t, upstream.calls, 4)
	require.Equal(t, OpAccessToken, upstream.calls[0].Op)
	require.Equal(t, OpFreepublishSubmit, upstream.calls[1].Op)
	require.Equal(t, "FRESH", upstream.calls[1].Query.Get("access_token"))
	require.Equal(t, OpAccessToken, upstream.calls[2].Op)
}

func TestAttachTokenFailureStopsCall(t *testing.T) {
	upstream := &recordingUpstream{responses: map[string]string{
		OpAccessToken: `{"errcode":40013,"errmsg":"invalid appid"}`,
	}}
	svc := newTestWeChatService(upstream, true)

	_, err := svc.DraftAdd(context.Background(), DraftInput{Articles: []json.RawMessage{json.RawMessage(`{}`)}})
	require.ErrorContains(t, err, "invalid appid")
	require.Len(t, upstream.calls, 1)
}

func TestTransportErrorIsReturned(t *testing.T) {
	upstream := &recordingUpstream{err: errors.New("dial tcp: timeout")}
	svc := newTestWeChatService(upstream, false)

	_, err := svc.FreepublishSubmit(context.Background(), PublishInput{MediaID: "X"})
	require.ErrorContains(t, err, "dial tcp")

	var verr *ValidationError
	var uerr *UpstreamError
	require.False(t, errors.As(err, &verr))
	require.False(t, errors.As(err, &uerr))
}
