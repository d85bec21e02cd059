package report

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var renderer = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML converts a Markdown report to an HTML fragment. Tables are rendered
// with the GFM table extension.
func HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}
