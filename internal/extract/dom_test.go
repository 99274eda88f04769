package extract

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < eps }

func hasWarning(ws []string, w string) bool {
	for _, x := range ws {
		if x == w {
			return true
		}
	}
	return false
}

func longArticle(sentences int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Long Read</title></head><body><nav><a href='/'>Home</a></nav><article><h1>Long Read</h1>")
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "<p>This is sentence number %d of a carefully written article about rivers.</p>", i)
	}
	b.WriteString("</article></body></html>")
	return b.String()
}

func TestDOM_TinyPageIsLowConfidence(t *testing.T) {
	html := `<html><head><title>Tiny</title></head><body><p>Hello world.</p></body></html>`
	u, _ := url.Parse("https://example.com/tiny")

	out := DOM{}.Extract(html, u, "Tiny", "Hello world.")
	if out.Method != MethodDOM {
		t.Fatalf("method = %q", out.Method)
	}
	if out.Confidence > LowConfidence+eps {
		t.Fatalf("expected confidence <= %v, got %v", LowConfidence, out.Confidence)
	}
	if !hasWarning(out.Warnings, WarnShortReadable) {
		t.Fatalf("expected short readable warning, got %v", out.Warnings)
	}
	if out.TextMarkdown != "Hello world." {
		t.Fatalf("expected body text fallback, got %q", out.TextMarkdown)
	}
	if !NeedsVision(out) {
		t.Fatalf("tiny page must need vision")
	}
	if out.TablesMarkdown != nil {
		t.Fatalf("dom extraction never fills tables")
	}
}

func TestDOM_TinyBodyFallsBack(t *testing.T) {
	out := DOM{}.Extract(`<html><body><p>tiny</p></body></html>`, nil, "", "tiny")
	if out.TextMarkdown != "tiny" {
		t.Fatalf("text = %q", out.TextMarkdown)
	}
	if !hasWarning(out.Warnings, WarnShortReadable) || !hasWarning(out.Warnings, WarnNavRatio) {
		t.Fatalf("warnings = %v", out.Warnings)
	}
	if !approx(out.Confidence, 0.35) {
		t.Fatalf("confidence = %v, want 0.35", out.Confidence)
	}
	if !NeedsVision(out) {
		t.Fatalf("tiny body must need vision")
	}
}

func TestHeuristicExtractor_SkipsReadability(t *testing.T) {
	out := HeuristicExtractor{}.Extract(longArticle(40), nil, "Fallback", "")
	if out.Method != MethodDOM {
		t.Fatalf("method = %q", out.Method)
	}
	if out.Title != "Long Read" {
		t.Fatalf("title = %q", out.Title)
	}
	if strings.Contains(out.TextMarkdown, "Home") {
		t.Fatalf("nav text leaked: %q", out.TextMarkdown)
	}
	if !strings.Contains(out.TextMarkdown, "sentence number 39") {
		t.Fatalf("article text missing")
	}
}

func TestDOM_LongArticleIsConfident(t *testing.T) {
	u, _ := url.Parse("https://example.com/article")
	out := DOM{}.Extract(longArticle(120), u, "fallback", "")

	if !approx(out.Confidence, BaseConfidence) {
		t.Fatalf("expected confidence %v, got %v (warnings %v)", BaseConfidence, out.Confidence, out.Warnings)
	}
	if len(out.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", out.Warnings)
	}
	if NeedsVision(out) {
		t.Fatalf("long article must not need vision")
	}
	if !strings.Contains(out.TextMarkdown, "sentence number 119") {
		t.Fatalf("expected article text, got %q", out.TextMarkdown[:80])
	}
	if out.Title == "" {
		t.Fatalf("expected a title")
	}
}

func TestDOM_ReadableFailureFallsBackToWholeDocument(t *testing.T) {
	d := DOM{Readable: func(string, *url.URL) (string, string, error) {
		return "", "", errors.New("no article")
	}}
	out := d.Extract(longArticle(40), nil, "Fallback Title", "")
	if out.Title != "Fallback Title" {
		t.Fatalf("expected fallback title, got %q", out.Title)
	}
	if hasWarning(out.Warnings, WarnShortReadable) {
		t.Fatalf("whole document is long enough, got %v", out.Warnings)
	}
	if strings.Contains(out.TextMarkdown, "Home") {
		t.Fatalf("nav text leaked: %q", out.TextMarkdown)
	}
}

func TestDOM_ReadablePanicIsContained(t *testing.T) {
	d := DOM{Readable: func(string, *url.URL) (string, string, error) {
		panic("boom")
	}}
	out := d.Extract("<html><body><p>x</p></body></html>", nil, "T", "x")
	if out.Method != MethodDOM || out.TextMarkdown != "x" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestDOM_ReadableTitleWins(t *testing.T) {
	d := DOM{Readable: func(h string, _ *url.URL) (string, string, error) {
		return "  Article Title ", h, nil
	}}
	out := d.Extract(longArticle(40), nil, "Page Title", "")
	if out.Title != "Article Title" {
		t.Fatalf("title = %q", out.Title)
	}
}

func TestScore_Penalties(t *testing.T) {
	long := strings.Repeat("This line is comfortably longer than forty characters in total.\n", 20)

	cases := []struct {
		name     string
		text     string
		want     float64
		warnings []string
	}{
		{"long clean", long, 0.9, nil},
		{"short only", strings.Repeat("word ", 50), 0.55, nil},
		{"hint on long", long + "Please enable JavaScript to continue reading this page today.", 0.65, []string{WarnHint}},
		{"short with hint and nav", "Home\nNews\nSubscribe to read\nLogin", 0.1, []string{WarnHint, WarnNavRatio}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ws := Score(tc.text)
			if !approx(got, tc.want) {
				t.Fatalf("confidence = %v, want %v", got, tc.want)
			}
			if len(ws) != len(tc.warnings) {
				t.Fatalf("warnings = %v, want %v", ws, tc.warnings)
			}
			for i := range ws {
				if ws[i] != tc.warnings[i] {
					t.Fatalf("warning %d = %q, want %q", i, ws[i], tc.warnings[i])
				}
			}
		})
	}
}

// 800 runes is the first length that is not short; the multi-byte letters make
// sure runes are counted rather than bytes.
func TestScore_ShortContentBoundary(t *testing.T) {
	at := strings.Repeat(strings.Repeat("é", 79)+"\n", 10)
	below := strings.TrimSuffix(at, "\n")
	if n := utf8.RuneCountInString(at); n != ShortContentChars {
		t.Fatalf("fixture has %d runes", n)
	}

	got, ws := Score(at)
	if !approx(got, 0.9) || len(ws) != 0 {
		t.Fatalf("800 runes: confidence %v warnings %v", got, ws)
	}
	if NeedsVision(Outcome{TextMarkdown: at, Confidence: got}) {
		t.Fatalf("800 runes must not need vision")
	}

	got, ws = Score(below)
	if !approx(got, 0.55) || len(ws) != 0 {
		t.Fatalf("799 runes: confidence %v warnings %v", got, ws)
	}
	if !NeedsVision(Outcome{TextMarkdown: below, Confidence: got}) {
		t.Fatalf("799 runes must need vision")
	}
}

func TestScore_StaysInRange(t *testing.T) {
	got, _ := Score("")
	if got < 0 || got > 1 {
		t.Fatalf("confidence out of range: %v", got)
	}
	if Clamp(-0.3) != 0 || Clamp(1.7) != 1 || Clamp(0.4) != 0.4 {
		t.Fatalf("clamp misbehaves")
	}
}

func TestNeedsVision(t *testing.T) {
	long := strings.Repeat("A long enough line of article text for the heuristics.\n", 30)
	cases := []struct {
		name string
		out  Outcome
		want bool
	}{
		{"short", Outcome{TextMarkdown: "short", Confidence: 0.9}, true},
		{"hint", Outcome{TextMarkdown: long + "captcha", Confidence: 0.9}, true},
		{"low confidence", Outcome{TextMarkdown: long, Confidence: 0.5}, true},
		{"good", Outcome{TextMarkdown: long, Confidence: 0.9}, false},
		{"at threshold", Outcome{TextMarkdown: long, Confidence: LowConfidence}, false},
	}
	for _, tc := range cases {
		if got := NeedsVision(tc.out); got != tc.want {
			t.Fatalf("%s: NeedsVision = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNavRatio(t *testing.T) {
	if r := NavRatio(""); r != 0 {
		t.Fatalf("empty text ratio = %v", r)
	}
	text := "Home\n\nAbout\n" + strings.Repeat("x", 50)
	if r := NavRatio(text); !approx(r, 2.0/3.0) {
		t.Fatalf("ratio = %v", r)
	}
}

func TestCleanText(t *testing.T) {
	in := "  <b>Café</b>  au\tlait \r\n\r\n\r\n\n next  line  "
	got := CleanText(in)
	want := "Café au lait\n\nnext line"
	if got != want {
		t.Fatalf("CleanText = %q, want %q", got, want)
	}
}
