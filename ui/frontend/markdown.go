package frontend

import (
	"bytes"
	"html/template"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// The goldmark instance and the sanitizer policy are immutable once built
// and safe for concurrent use.
var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
	htmlPolicy     *bluemonday.Policy
)

func markdownRenderer() (goldmark.Markdown, *bluemonday.Policy) {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
		htmlPolicy = bluemonday.UGCPolicy()
	})
	return markdownParser, htmlPolicy
}

// markdown renders stored message content as sanitized HTML. Content is
// model or user generated, so raw HTML in it never reaches the page
// unsanitized.
func markdown(s string) template.HTML {
	md, policy := markdownRenderer()

	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(s))
	}
	return template.HTML(policy.SanitizeBytes(buf.Bytes()))
}
