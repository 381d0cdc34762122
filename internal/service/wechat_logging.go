package service

import (
	"net/url"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

const maxUpstreamLogSnippetRunes = 512

var redactedQueryKeys = []string{"secret", "access_token"}

// logUpstreamExchange 输出微信接口调用的关键信息，凭证类参数会被打码。
func logUpstreamExchange(req UpstreamRequest, status, errcode int, body []byte) {
	entry := log.WithFields(log.Fields{
		"op":      req.Op,
		"path":    req.Path,
		"query":   redactQuery(req.Query),
		"status":  status,
		"errcode": errcode,
	})

	snippet := strings.TrimSpace(string(body))
	runeCount := utf8.RuneCountInString(snippet)
	if runeCount > maxUpstreamLogSnippetRunes {
		snippet = string([]rune(snippet)[:maxUpstreamLogSnippetRunes]) + "…(truncated)"
	}
	if strings.Contains(snippet, "access_token") {
		snippet = "<redacted>"
	}
	entry = entry.WithField("body", snippet)

	if errcode != 0 {
		entry.Warn("wechat upstream returned error")
		return
	}
	entry.Info("wechat upstream call")
}

func redactQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	clone := make(url.Values, len(query))
	for key, values := range query {
		clone[key] = values
	}
	for _, key := range redactedQueryKeys {
		if clone.Has(key) {
			clone.Set(key, "******")
		}
	}
	return clone.Encode()
}
