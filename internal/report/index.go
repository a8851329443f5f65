package report

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"promptab/internal/duckdb"
)

// IndexView lists stored tests.
type IndexView struct {
	Title string
	Tests []TestLink
}

// TestLink is one row of the index.
type TestLink struct {
	ID      string
	Name    string
	Status  string
	Results string
	Created string
	Href    string
}

// BuildIndex links every summary to its report under basePath.
func BuildIndex(summaries []duckdb.TestSummary, basePath string) IndexView {
	view := IndexView{Title: "Stored A/B tests"}
	for _, summary := range summaries {
		created := "-"
		if !summary.CreatedAt.IsZero() {
			created = summary.CreatedAt.UTC().Format(time.RFC3339)
		}
		view.Tests = append(view.Tests, TestLink{
			ID:      summary.ID,
			Name:    summary.Name,
			Status:  string(summary.Status),
			Results: fmt.Sprintf("%d", summary.Results),
			Created: created,
			Href:    basePath + url.PathEscape(summary.ID),
		})
	}
	return view
}

// IndexHTML writes the index page.
func IndexHTML(ctx context.Context, w io.Writer, view IndexView) error {
	return Index(view).Render(ctx, w)
}
