package generator

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// decodeText turns raw file bytes into NFC-normalised text. A byte order
// mark selects UTF-16; without one the input is read as UTF-8.
func decodeText(data []byte) (string, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", err
	}
	return norm.NFC.String(string(decoded)), nil
}

func pageFileName(cat Category, n int) string {
	return fmt.Sprintf("%s-%03d.html", cat.Prefix, n)
}

func navLink(cat Category, n int, enabled bool, class, arrow string) NavLink {
	l := NavLink{Class: class, Arrow: arrow, Enabled: enabled}
	if enabled {
		l.Href = pageFileName(cat, n)
	}
	return l
}

// navLinkHTML renders an active link or its disabled placeholder. Both carry
// the nav-btn class so the header keeps the same layout either way.
func navLinkHTML(l NavLink) string {
	if l.Enabled {
		return fmt.Sprintf(`<a href="%s" class="nav-btn %s">%s</a>`,
			html.EscapeString(l.Href), l.Class, l.Arrow)
	}
	return fmt.Sprintf(`<span class="nav-btn %s disabled">%s</span>`, l.Class, l.Arrow)
}

func loadDocument(path string) (*goquery.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(data))
}

func saveDocument(path string, doc *goquery.Document) error {
	out, err := doc.Html()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(out), 0644)
}

// navButtons returns the previous and next buttons of a song page header.
func navButtons(doc *goquery.Document) (prev, next *goquery.Selection, err error) {
	buttons := doc.Find(".title-row .nav-btn")
	if buttons.Length() < 2 {
		return nil, nil, fmt.Errorf("page has no navigation buttons")
	}
	return buttons.First(), buttons.Last(), nil
}

func isLink(s *goquery.Selection) bool {
	return goquery.NodeName(s) == "a"
}

func isActiveLink(s *goquery.Selection, href string) bool {
	if !isLink(s) {
		return false
	}
	got, _ := s.Attr("href")
	return got == href
}

func insertBefore(content string, at int, text string) string {
	var b strings.Builder
	b.Grow(len(content) + len(text))
	b.WriteString(content[:at])
	b.WriteString(text)
	b.WriteString(content[at:])
	return b.String()
}
