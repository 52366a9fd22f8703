// Package render converts generated markdown answers to sanitized HTML.
package render

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Renderer is safe for concurrent use.
type Renderer struct {
	policy *bluemonday.Policy
}

// NewRenderer creates a renderer using the user-generated-content policy.
func NewRenderer() *Renderer {
	return &Renderer{policy: bluemonday.UGCPolicy()}
}

// HTML renders markdown. Raw HTML inside the answer is stripped by the policy.
func (r *Renderer) HTML(md string) string {
	if md == "" {
		return ""
	}
	// 解析器与渲染器都有状态，每次调用新建
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	out := markdown.ToHTML([]byte(md), p, renderer)
	return string(r.policy.SanitizeBytes(out))
}
