package web

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// renderMarkdown converts assistant narrative text to HTML.
func renderMarkdown(text string) (string, error) {
	var b strings.Builder
	if err := markdown.Convert([]byte(text), &b); err != nil {
		return "", err
	}
	return b.String(), nil
}
