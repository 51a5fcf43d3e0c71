// Package summary renders the extraction backend's prose summary of the
// evaluation model. The backend emits markdown; the session exposes it
// pre-rendered so consumers get data, not widgets.
package summary

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
)

// Render converts a markdown summary to HTML. An empty summary renders to
// the empty string.
func Render(markdown string) (string, error) {
	if markdown == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render summary markdown: %w", err)
	}
	return buf.String(), nil
}
