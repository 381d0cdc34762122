package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
)

const (
	countActionInc   = "inc"
	countActionClear = "clear"
)

// UpdateCount 按 action 自增或清除计数。
func (a *API) UpdateCount(c *gin.Context) {
	var payload map[string]json.RawMessage
	if !bindJSON(c, &payload, "请求体格式错误") {
		return
	}
	raw, ok := payload["action"]
	if !ok {
		respondInvalid(c, "缺少action参数")
		return
	}

	// null 或非字符串的 action 按取值错误处理。
	var action string
	_ = json.Unmarshal(raw, &action)

	switch action {
	case countActionInc:
		count, err := a.counters.Increment(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		respondSuccess(c, count)
	case countActionClear:
		if err := a.counters.Clear(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
		respondEmpty(c)
	default:
		respondInvalid(c, "action参数错误")
	}
}

// GetCount 返回当前计数，未计数时为 0。
func (a *API) GetCount(c *gin.Context) {
	count, err := a.counters.Read(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, count)
}
