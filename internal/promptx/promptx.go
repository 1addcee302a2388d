// Package promptx renders prompt templates. It is a pure function from
// a template path and a context map to text; it has no knowledge of the
// executor, the ledger, or any other core collaborator.
package promptx

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

// Render reads the template at path and executes it against ctx,
// returning the rendered text.
func Render(path string, ctx map[string]any) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("promptx: read %s: %w", path, err)
	}
	tmpl, err := template.New(path).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("promptx: parse %s: %w", path, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("promptx: execute %s: %w", path, err)
	}
	return buf.String(), nil
}
