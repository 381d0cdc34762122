package view

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	//go:embed landing.md
	landingMarkdown []byte
	//go:embed layout.html
	layoutSource string

	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	sanitizer = bluemonday.UGCPolicy()
	layout    = template.Must(template.New("layout").Parse(layoutSource))
)

// RenderLanding 将内置的 Markdown 首页渲染为完整 HTML 页面。
func RenderLanding(title string) ([]byte, error) {
	return RenderMarkdownPage(title, landingMarkdown)
}

// RenderMarkdownPage 渲染 Markdown 并清洗 HTML 后套用页面布局。
func RenderMarkdownPage(title string, markdown []byte) ([]byte, error) {
	var rendered bytes.Buffer
	if err := markdownEngine.Convert(markdown, &rendered); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = "微信云托管"
	}

	var page bytes.Buffer
	if err := layout.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(sanitizer.SanitizeBytes(rendered.Bytes())),
	}); err != nil {
		return nil, fmt.Errorf("render layout: %w", err)
	}
	return page.Bytes(), nil
}
