package generator

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/niklasfasching/go-org/org"
)

// ParseOrg reads a song written as an org-mode document:
//
//	#+CATEGORY: english
//	#+TITLE: Song title
//	* Stanza 1
//	first line
//	* Chorus
//	refrain
//
// The document is flattened into the plain text format and handed to Parse,
// so both inputs follow the same rules. Headlines that are neither a stanza
// nor a chorus are skipped together with their body.
func ParseOrg(text, path string, cats Categories) (*SongRecord, error) {
	doc := org.New().Parse(strings.NewReader(text), path)
	if doc.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, doc.Error)
	}

	var b strings.Builder
	var category, title string
	for _, node := range doc.Nodes {
		switch n := node.(type) {
		case org.Keyword:
			switch strings.ToUpper(n.Key) {
			case "CATEGORY":
				if category == "" {
					category = n.Value
				}
			case "TITLE":
				if title == "" {
					title = n.Value
				}
			}
		case org.Headline:
			writeOrgHeadline(&b, n)
		}
	}

	var flat strings.Builder
	if category != "" {
		fmt.Fprintf(&flat, "CATEGORY: %s\n", category)
	}
	if title != "" {
		fmt.Fprintf(&flat, "TITLE: %s\n", title)
	}
	flat.WriteString(b.String())
	return Parse(flat.String(), cats)
}

func writeOrgHeadline(b *strings.Builder, h org.Headline) {
	var heading strings.Builder
	for _, n := range h.Title {
		heading.WriteString(n.String())
	}
	name := strings.TrimSpace(heading.String())

	if !reSectionHeading.MatchString(name) {
		slog.Warn("Skipping org headline that is not a stanza or chorus", "headline", name)
		for _, child := range h.Children {
			if sub, ok := child.(org.Headline); ok {
				writeOrgHeadline(b, sub)
			}
		}
		return
	}

	b.WriteString(name)
	b.WriteString("\n")
	var nested []org.Headline
	for _, child := range h.Children {
		if sub, ok := child.(org.Headline); ok {
			nested = append(nested, sub)
			continue
		}
		b.WriteString(child.String())
		b.WriteString("\n")
	}
	for _, sub := range nested {
		writeOrgHeadline(b, sub)
	}
}
