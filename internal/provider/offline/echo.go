// Package offline provides a generator that needs no network, used together with the
// TF-IDF embedder for local runs and demos.
package offline

import (
	"context"
	"strings"
)

// Echo returns the prompt it was given, so the composed context can be inspected.
type Echo struct{}

func (Echo) Generate(ctx context.Context, _ string, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(prompt), nil
}
