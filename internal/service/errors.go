package service

import "fmt"

// ValidationError 表示调用方输入缺失或非法，出现时不会访问上游接口。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}

// UpstreamError 表示微信接口返回了非零 errcode。
type UpstreamError struct {
	// Label 是本地操作名，作为错误信息前缀。
	Label   string
	Code    int
	Message string
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "未知错误"
	}
	return fmt.Sprintf("%s: %s", e.Label, msg)
}
