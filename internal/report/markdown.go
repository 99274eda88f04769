// Package report renders a browse response as Markdown or PDF.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/hal/internal/ladder"
)

// maxLinks bounds the link appendix; responses may carry up to 200.
const maxLinks = 50

// Markdown renders resp as a self-contained Markdown document.
func Markdown(resp ladder.Response) string {
	var b strings.Builder
	title := strings.TrimSpace(resp.Title)
	if title == "" {
		title = resp.URL
	}
	fmt.Fprintf(&b, "# %s\n\n", oneLine(title))
	fmt.Fprintf(&b, "Source: [%s](%s)\n", resp.URL, resp.URL)
	fmt.Fprintf(&b, "Fetched: %s\n", resp.FetchedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Method: %s (confidence %.2f)\n\n", resp.MethodUsed, resp.Confidence)

	if len(resp.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range resp.Warnings {
			fmt.Fprintf(&b, "- %s\n", oneLine(w))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Content\n\n")
	if text := strings.TrimSpace(resp.TextMarkdown); text != "" {
		b.WriteString(text)
		b.WriteString("\n\n")
	} else {
		b.WriteString("(no text extracted)\n\n")
	}

	if resp.TablesMarkdown != nil && strings.TrimSpace(*resp.TablesMarkdown) != "" {
		b.WriteString("## Tables\n\n")
		b.WriteString(strings.TrimSpace(*resp.TablesMarkdown))
		b.WriteString("\n\n")
	}

	if len(resp.Citations) > 0 {
		b.WriteString("## Citations\n\n")
		for i, c := range resp.Citations {
			if c.Type == ladder.CitationURL {
				fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, c.Value, c.Value)
				continue
			}
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, c.Type, c.Value)
		}
		b.WriteString("\n")
	}

	if len(resp.Links) > 0 {
		b.WriteString("## Links\n\n")
		links := resp.Links
		if len(links) > maxLinks {
			links = links[:maxLinks]
		}
		for _, l := range links {
			fmt.Fprintf(&b, "- [%s](%s)\n", l, l)
		}
		if n := len(resp.Links) - len(links); n > 0 {
			fmt.Fprintf(&b, "- ... %d more\n", n)
		}
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
