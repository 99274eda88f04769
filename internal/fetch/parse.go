package fetch

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockSelector lists elements that start a new line in rendered text.
const blockSelector = "p, div, li, tr, h1, h2, h3, h4, h5, h6, section, article, header, footer, nav, blockquote, pre, table, ul, ol, dd, dt"

func parsePage(p page) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}
	html := string(p.body)
	title := strings.TrimSpace(doc.Find("head title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	links := ExtractLinks(doc, p.finalURL)
	return Result{
		Title:    title,
		HTML:     html,
		BodyText: visibleText(doc),
		Links:    links,
	}, nil
}

// ExtractLinks resolves every a[href] against base and returns up to MaxLinks
// absolute http(s) URLs in document order.
func ExtractLinks(doc *goquery.Document, base *url.URL) []string {
	links := make([]string, 0, 16)
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		if !ref.IsAbs() || !isHTTPScheme(ref) {
			return true
		}
		links = append(links, ref.String())
		return len(links) < MaxLinks
	})
	return links
}

// visibleText approximates document.body.innerText: hidden and script content
// is dropped and block elements end a line.
func visibleText(doc *goquery.Document) string {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		body = doc.Selection
	}
	body = body.Clone()
	body.Find("script, style, noscript, template, [hidden]").Remove()
	body.Find("br").ReplaceWithHtml("\n")
	body.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	lines := strings.Split(body.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
		}
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
