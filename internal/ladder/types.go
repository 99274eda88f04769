package ladder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/hal/internal/extract"
	"github.com/hyperifyio/hal/internal/fetch"
)

// Mode selects how aggressively the ladder escalates.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeDOM    Mode = "dom"
	ModeVision Mode = "vision"
)

// ErrInvalidMode is returned for a mode other than auto, dom or vision.
var ErrInvalidMode = errors.New("invalid mode")

// ParseMode accepts the mode names case-insensitively. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeDOM, ModeVision:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q (want auto, dom or vision)", ErrInvalidMode, s)
	}
}

// Defaults for fields the caller leaves out.
const (
	DefaultTimeoutMS   = 20000
	DefaultNetworkIdle = true
	DefaultFullPage    = true
)

// Wait controls how long and for what the renderer waits.
type Wait struct {
	TimeoutMS   int    `json:"timeout_ms"`
	NetworkIdle bool   `json:"network_idle"`
	Selector    string `json:"selector,omitempty"`
}

// Screenshot controls what the renderer captures.
type Screenshot struct {
	FullPage  bool     `json:"full_page"`
	Selectors []string `json:"selectors"`
}

// Request is one browse invocation.
type Request struct {
	URL              string     `json:"url"`
	Mode             Mode       `json:"mode"`
	VisualExtraction bool       `json:"visual_extraction"`
	Wait             Wait       `json:"wait"`
	Screenshot       Screenshot `json:"screenshot"`
}

// NewRequest returns a request for rawURL with every default applied.
func NewRequest(rawURL string) Request {
	return Request{
		URL:        rawURL,
		Mode:       ModeAuto,
		Wait:       Wait{TimeoutMS: DefaultTimeoutMS, NetworkIdle: DefaultNetworkIdle},
		Screenshot: Screenshot{FullPage: DefaultFullPage, Selectors: []string{}},
	}
}

// UnmarshalJSON decodes over NewRequest defaults so absent fields keep them,
// including nested wait and screenshot fields.
func (r *Request) UnmarshalJSON(b []byte) error {
	type plain Request
	v := plain(NewRequest(""))
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = Request(v)
	return nil
}

func (r Request) fetchRequest() fetch.Request {
	return fetch.Request{
		URL: r.URL,
		Wait: fetch.WaitOptions{
			Timeout:     time.Duration(r.Wait.TimeoutMS) * time.Millisecond,
			NetworkIdle: r.Wait.NetworkIdle,
			Selector:    r.Wait.Selector,
		},
		Screenshot: fetch.ScreenshotOptions{
			FullPage:  r.Screenshot.FullPage,
			Selectors: r.Screenshot.Selectors,
		},
	}
}

// Citation types.
const (
	CitationURL        = "url"
	CitationScreenshot = "screenshot"
)

// Citation points at the evidence a response was derived from.
type Citation struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Response is the externally visible record of one browse.
type Response struct {
	URL            string         `json:"url"`
	FetchedAt      time.Time      `json:"fetched_at"`
	MethodUsed     extract.Method `json:"method_used"`
	Title          string         `json:"title"`
	TextMarkdown   string         `json:"text_markdown"`
	TablesMarkdown *string        `json:"tables_markdown"`
	Links          []string       `json:"links"`
	Screenshots    []string       `json:"screenshots"`
	Warnings       []string       `json:"warnings"`
	Confidence     float64        `json:"confidence"`
	Citations      []Citation     `json:"citations"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
