package report

import (
	"context"
	"io"
	"strings"

	"promptab/internal/runner"
)

// HTML writes a standalone HTML page for results.
func HTML(ctx context.Context, w io.Writer, results runner.Results) error {
	return Page(BuildView(results)).Render(ctx, w)
}

// RenderHTML renders the HTML page into a string.
func RenderHTML(ctx context.Context, results runner.Results) (string, error) {
	var builder strings.Builder
	if err := HTML(ctx, &builder, results); err != nil {
		return "", err
	}
	return builder.String(), nil
}
