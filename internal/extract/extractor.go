package extract

import "net/url"

// Extractor defines the DOM extraction step of the ladder.
// Implementations can swap readability tactics without changing callers.
type Extractor interface {
	// Extract converts rendered HTML into an Outcome with Method set to
	// MethodDOM. Implementations should be deterministic and avoid side effects.
	Extract(html string, pageURL *url.URL, fallbackTitle, fallbackBody string) Outcome
}

// HeuristicExtractor skips the readability step and applies the FromHTML
// walker, which prefers <main>/<article> and drops boilerplate, to the whole
// document.
type HeuristicExtractor struct{}

func (HeuristicExtractor) Extract(html string, pageURL *url.URL, fallbackTitle, fallbackBody string) Outcome {
	d := DOM{Readable: func(h string, _ *url.URL) (string, string, error) {
		return FromHTML([]byte(h)).Title, h, nil
	}}
	return d.Extract(html, pageURL, fallbackTitle, fallbackBody)
}

var (
	_ Extractor = DOM{}
	_ Extractor = HeuristicExtractor{}
)
