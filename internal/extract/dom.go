package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/text/unicode/norm"
)

// Method names the extraction method that produced an Outcome.
type Method string

const (
	MethodDOM    Method = "dom"
	MethodVision Method = "vision"
)

// Confidence heuristic constants.
const (
	BaseConfidence        = 0.9
	MinReadableChars      = 300
	ShortContentChars     = 800
	ShortLineChars        = 40
	NavRatioThreshold     = 0.7
	LowConfidence         = 0.55
	shortTextPenalty      = 0.35
	hintPenalty           = 0.25
	navBoilerplatePenalty = 0.20
)

// Warning texts emitted by the DOM extractor.
const (
	WarnShortReadable = "Readability returned short content, used body text fallback"
	WarnHint          = "Potential bot/captcha/paywall content detected"
	WarnNavRatio      = "High navigation boilerplate ratio detected"
)

// PaywallHints are lowercase phrases that suggest the page is a bot wall,
// captcha or paywall rather than content.
var PaywallHints = []string{"enable javascript", "captcha", "subscribe to read", "paywall", "access denied"}

// Outcome is the result of one extraction method.
type Outcome struct {
	Title          string
	TextMarkdown   string
	TablesMarkdown *string
	Warnings       []string
	Confidence     float64
	Method         Method
}

// ReadableFunc isolates the main article region of a page and returns its
// title and HTML fragment.
type ReadableFunc func(html string, pageURL *url.URL) (title string, fragment string, err error)

// DOM extracts text from rendered HTML. The zero value uses go-readability.
type DOM struct {
	// Readable overrides the main-content step; nil uses go-readability.
	Readable ReadableFunc
}

// Extract never fails: when the readable region is too short it falls back to
// the visible body text and records why.
func (d DOM) Extract(html string, pageURL *url.URL, fallbackTitle, fallbackBody string) Outcome {
	warnings := make([]string, 0, 3)

	title := fallbackTitle
	fragment := html
	readable := d.Readable
	if readable == nil {
		readable = readabilityArticle
	}
	if t, frag, err := safeReadable(readable, html, pageURL); err == nil {
		if strings.TrimSpace(t) != "" {
			title = strings.TrimSpace(t)
		}
		fragment = frag
	}

	text := CleanText(FromHTML([]byte(fragment)).Text)
	if charLen(text) < MinReadableChars {
		warnings = append(warnings, WarnShortReadable)
		text = CleanText(fallbackBody)
	}

	confidence, scoreWarnings := Score(text)
	warnings = append(warnings, scoreWarnings...)

	return Outcome{
		Title:        title,
		TextMarkdown: text,
		Warnings:     warnings,
		Confidence:   confidence,
		Method:       MethodDOM,
	}
}

// Score computes the heuristic confidence for text plus a warning for each
// penalty that is not implied by length alone.
func Score(text string) (float64, []string) {
	var warnings []string
	confidence := BaseConfidence
	if charLen(text) < ShortContentChars {
		confidence -= shortTextPenalty
	}
	hint := ContainsHint(text)
	if hint {
		confidence -= hintPenalty
	}
	navHeavy := NavRatio(text) > NavRatioThreshold
	if navHeavy {
		confidence -= navBoilerplatePenalty
	}
	if hint {
		warnings = append(warnings, WarnHint)
	}
	if navHeavy {
		warnings = append(warnings, WarnNavRatio)
	}
	return Clamp(confidence), warnings
}

// NeedsVision reports whether a DOM outcome is too weak to trust.
func NeedsVision(o Outcome) bool {
	return charLen(o.TextMarkdown) < ShortContentChars ||
		ContainsHint(o.TextMarkdown) ||
		o.Confidence < LowConfidence
}

// ContainsHint reports whether text contains any PaywallHints phrase.
func ContainsHint(text string) bool {
	lower := strings.ToLower(text)
	for _, h := range PaywallHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// NavRatio is the share of non-blank lines shorter than ShortLineChars.
func NavRatio(text string) float64 {
	total, short := 0, 0
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		total++
		if charLen(ln) < ShortLineChars {
			short++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(short) / float64(total)
}

// Clamp bounds v to [0, 1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var (
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	hspaceRe     = regexp.MustCompile(`[ \t]+`)
	lineEdgeRe   = regexp.MustCompile(` ?\n ?`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// CleanText strips residual tags, normalizes to NFC, collapses horizontal
// whitespace runs to one space and blank-line runs to a single blank line,
// and trims the result.
func CleanText(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = hspaceRe.ReplaceAllString(s, " ")
	s = lineEdgeRe.ReplaceAllString(s, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func charLen(s string) int { return utf8.RuneCountInString(s) }

func readabilityArticle(html string, pageURL *url.URL) (string, string, error) {
	if pageURL == nil {
		pageURL = &url.URL{Scheme: "https", Host: "localhost", Path: "/"}
	}
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return "", "", err
	}
	return article.Title, article.Content, nil
}

func safeReadable(fn ReadableFunc, html string, pageURL *url.URL) (title, fragment string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("readability panic: %v", r)
		}
	}()
	return fn(html, pageURL)
}
