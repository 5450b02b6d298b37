package matrix

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// md renders chat replies. Raw HTML in model output is escaped, not passed
// through.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// markupChars are the characters whose presence makes a reply worth
// sending as formatted HTML.
const markupChars = "*_`#|[~>"

// RenderHTML converts Markdown to the HTML used in formatted_body. It
// returns "" when s has no Markdown markup or cannot be rendered.
func RenderHTML(s string) string {
	if !strings.ContainsAny(s, markupChars) && !hasListLine(s) {
		return ""
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

func hasListLine(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "1. ") {
			return true
		}
	}
	return false
}
