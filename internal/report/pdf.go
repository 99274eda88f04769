package report

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/hyperifyio/hal/internal/ladder"
)

var linkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`) // [text](url)

// WritePDF renders resp to a PDF file at outPath.
func WritePDF(resp ladder.Response, outPath string) error {
	return writeSimplePDF(Markdown(resp), outPath)
}

// writeSimplePDF renders a minimal PDF from Markdown text, preserving paragraphs and
// turning Markdown links [text](url) into clickable PDF links. It does not
// perform full Markdown layout.
func writeSimplePDF(markdown string, outPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252; translate so accented text survives.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", 11)
	pdf.AddPage()

	// Render line by line to avoid huge paragraphs
	scanner := bufio.NewScanner(strings.NewReader(markdown))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		s := strings.TrimSpace(scanner.Text())
		if s == "" {
			pdf.Ln(5)
			continue
		}
		if strings.HasPrefix(s, "#") {
			i := 0
			for i < len(s) && s[i] == '#' {
				i++
			}
			text := strings.TrimSpace(s[i:])
			if text == "" {
				continue
			}
			size := 14.0
			if i >= 2 {
				size = 12.0
			}
			pdf.SetFont("Helvetica", "B", size)
			pdf.MultiCell(0, 8, tr(text), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
			continue
		}
		if strings.HasPrefix(s, "|") {
			// Table rows keep their pipes in a fixed-width font.
			pdf.SetFont("Courier", "", 9)
			pdf.MultiCell(0, 4, tr(s), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
			continue
		}
		parts := linkRe.FindAllStringSubmatchIndex(s, -1)
		if len(parts) == 0 {
			pdf.MultiCell(0, 5, tr(s), "", "L", false)
			continue
		}
		pos := 0
		for _, m := range parts {
			// m: [fullStart, fullEnd, textStart, textEnd, urlStart, urlEnd]
			if m[0] > pos {
				pdf.Write(5, tr(s[pos:m[0]]))
			}
			text := s[m[2]:m[3]]
			url := s[m[4]:m[5]]
			if strings.HasPrefix(url, "#") {
				pdf.Write(5, tr(text))
			} else {
				pdf.WriteLinkString(5, tr(text), url)
			}
			pos = m[1]
		}
		if pos < len(s) {
			pdf.Write(5, tr(s[pos:]))
		}
		pdf.Ln(6)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return pdf.OutputFileAndClose(outPath)
}
