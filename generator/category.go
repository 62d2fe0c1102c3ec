package generator

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	englishChorusLabel = "Chorus"
	hindiChorusLabel   = "कोरस"
)

// Category maps a CATEGORY value onto its storage directory, page file
// prefix and the names shown on the listing and overview pages.
type Category struct {
	Name        string
	Prefix      string
	Dir         string
	Display     string
	ChorusLabel string
}

type Categories []Category

func DefaultCategories() Categories {
	return Categories{
		{Name: "hindi", Prefix: "hin", Dir: "hindi", Display: "Hindi", ChorusLabel: hindiChorusLabel},
		{Name: "english", Prefix: "eng", Dir: "english", Display: "English", ChorusLabel: englishChorusLabel},
		{Name: "youth camp", Prefix: "yc", Dir: "youth-camp", Display: "Youth Camp", ChorusLabel: englishChorusLabel},
		{Name: "special", Prefix: "spe", Dir: "special", Display: "Special", ChorusLabel: englishChorusLabel},
		{Name: "other", Prefix: "oth", Dir: "other", Display: "Other", ChorusLabel: englishChorusLabel},
		{Name: "hindi chorus", Prefix: "hch", Dir: "hindi-chorus", Display: "Hindi Chorus", ChorusLabel: hindiChorusLabel},
		{Name: "english chorus", Prefix: "ech", Dir: "english-chorus", Display: "English Chorus", ChorusLabel: englishChorusLabel},
	}
}

// NewCategory builds a category from a name, deriving every empty field.
// A missing prefix falls back to the first three letters of the slug.
func NewCategory(name, prefix, dir, display, chorusLabel string) Category {
	name = normalizeCategoryName(name)
	slug := strings.ReplaceAll(name, " ", "-")
	if prefix == "" {
		prefix = truncateRunes(strings.ReplaceAll(slug, "-", ""), 3)
	}
	if dir == "" {
		dir = slug
	}
	if display == "" {
		display = cases.Title(language.English).String(name)
	}
	if chorusLabel == "" {
		chorusLabel = englishChorusLabel
		if strings.HasPrefix(name, "hindi") {
			chorusLabel = hindiChorusLabel
		}
	}
	return Category{
		Name:        name,
		Prefix:      prefix,
		Dir:         dir,
		Display:     display,
		ChorusLabel: chorusLabel,
	}
}

// Lookup matches name case-insensitively, ignoring surrounding and repeated
// whitespace.
func (cs Categories) Lookup(name string) (Category, bool) {
	name = normalizeCategoryName(name)
	for _, c := range cs {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// With returns a copy of cs where each extra category replaces a built-in
// one of the same name or is appended.
func (cs Categories) With(extra ...Category) Categories {
	out := append(Categories(nil), cs...)
	for _, e := range extra {
		replaced := false
		for i := range out {
			if out[i].Name == e.Name {
				out[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, e)
		}
	}
	return out
}

func (cs Categories) Validate() error {
	prefixes := make(map[string]string, len(cs))
	dirs := make(map[string]string, len(cs))
	for _, c := range cs {
		if c.Name == "" || c.Prefix == "" || c.Dir == "" {
			return fmt.Errorf("category %q is incomplete", c.Name)
		}
		if other, ok := prefixes[c.Prefix]; ok {
			return fmt.Errorf("categories %q and %q share prefix %q", other, c.Name, c.Prefix)
		}
		if other, ok := dirs[c.Dir]; ok {
			return fmt.Errorf("categories %q and %q share directory %q", other, c.Name, c.Dir)
		}
		prefixes[c.Prefix] = c.Name
		dirs[c.Dir] = c.Name
	}
	return nil
}

func (cs Categories) orDefault() Categories {
	if len(cs) == 0 {
		return DefaultCategories()
	}
	return cs
}

func normalizeCategoryName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
