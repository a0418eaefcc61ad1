// Package markdown renders post bodies to sanitized HTML. Rendering is a pure
// function of the input text: the same stored bytes always produce the same
// output, which the read path relies on.
package markdown

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Table,
		extension.Strikethrough,
		extension.Footnote,
		extension.Linkify,
		extension.Typographer,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
		// Raw HTML embedded in the source stays disabled; goldmark escapes
		// it by default and the sanitizer below strips whatever survives.
	),
)

var sanitizePolicy = newSanitizePolicy()

func newSanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	// Footnote references need their anchors and back-links.
	p.AllowAttrs("id", "class").Globally()
	p.AllowAttrs("role").OnElements("section", "a")
	p.AllowImages()
	p.RequireNoFollowOnLinks(true)
	return p
}

// Render converts markdown text to HTML and passes the result through the
// allow-list sanitizer, neutralizing injected markup or script content.
func Render(markdownText string) string {
	text := strings.TrimSpace(markdownText)
	if text == "" {
		return ""
	}

	var out bytes.Buffer
	if err := markdownEngine.Convert([]byte(text), &out); err != nil {
		return template.HTMLEscapeString(text)
	}

	return sanitizePolicy.Sanitize(out.String())
}
