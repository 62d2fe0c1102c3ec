package generator

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	songTemplate     = "song-page-template.html"
	listingTemplate  = "listing-page-template.html"
	overviewTemplate = "overview-page-template.html"
	baseTemplate     = "base-template.html"
)

type Templates struct {
	Song     *template.Template
	Listing  *template.Template
	Overview *template.Template
}

// SetupTemplates loads the page templates from root/templates when that
// directory exists, otherwise from the copies embedded in the binary.
func SetupTemplates(root string) (*Templates, error) {
	funcMap := template.FuncMap{
		"navLink": func(l NavLink) template.HTML {
			return template.HTML(navLinkHTML(l))
		},
		"joinLines": func(lines []string) string {
			return strings.Join(lines, "\n")
		},
		"isChorus": func(s Section) bool {
			return s.Kind == Chorus
		},
	}

	templatesDir := filepath.Join(root, "templates")
	useDir := true
	if _, err := os.Stat(templatesDir); os.IsNotExist(err) {
		useDir = false
		slog.Debug("Using embedded templates", "reason", "templates directory not found")
	} else {
		slog.Debug("Using custom templates from directory", "path", templatesDir)
	}

	parse := func(name string) (*template.Template, error) {
		tmpl := template.New(name).Funcs(funcMap)
		if useDir {
			return tmpl.ParseFiles(
				filepath.Join(templatesDir, baseTemplate),
				filepath.Join(templatesDir, name),
			)
		}
		return tmpl.ParseFS(templates, "templates/"+baseTemplate, "templates/"+name)
	}

	var t Templates
	var err error
	if t.Song, err = parse(songTemplate); err != nil {
		return nil, fmt.Errorf("failed to parse song template: %w", err)
	}
	if t.Listing, err = parse(listingTemplate); err != nil {
		return nil, fmt.Errorf("failed to parse listing template: %w", err)
	}
	if t.Overview, err = parse(overviewTemplate); err != nil {
		return nil, fmt.Errorf("failed to parse overview template: %w", err)
	}
	return &t, nil
}

// NewSongPage computes the page data for song number n. The previous link is
// disabled for the first song and the next link once n reaches total.
func NewSongPage(rec *SongRecord, cat Category, n, total int, siteName string) SongPageData {
	return SongPageData{
		SiteName: siteName,
		Number:   n,
		Title:    rec.Title,
		Category: cat,
		Sections: rec.Sections,
		Prev:     navLink(cat, n-1, n > 1, "nav-prev", "←"),
		Next:     navLink(cat, n+1, n < total, "nav-next", "→"),
	}
}

// RenderSong executes the song template. The output depends only on page.
func (t *Templates) RenderSong(page SongPageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Song.ExecuteTemplate(&buf, songTemplate, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSongPage renders the job's page with ctx.Headroom extra songs assumed
// after it, so the next link is live before the next song exists.
func WriteSongPage(job *SongJob, ctx BuildContext, tmpl *Templates) GenerationResult {
	slog.Debug("Starting Phase 2: writing song page", "number", job.Number)

	total := job.Number + ctx.Headroom
	page := NewSongPage(job.Record, job.Category, job.Number, total, ctx.SiteName)
	out, err := tmpl.RenderSong(page)
	if err != nil {
		return GenerationResult{Fatal: fmt.Errorf("error rendering song page: %w", err)}
	}

	outputPath := filepath.Join(ctx.Root, job.Category.Dir, job.Entry.FilePath)
	if err := os.WriteFile(outputPath, out, 0644); err != nil {
		return GenerationResult{Fatal: fmt.Errorf("error writing song page: %w", err)}
	}

	slog.Debug("Wrote song page", "path", outputPath)
	return GenerationResult{PagesGenerated: 1}.step("created", "%s", filepath.Join(job.Category.Dir, job.Entry.FilePath))
}

// LinkPredecessor makes the previous song's next link point at the new page
// when it is still a disabled placeholder. Problems are reported as warnings.
func LinkPredecessor(job *SongJob, ctx BuildContext) GenerationResult {
	if job.Number <= 1 {
		return GenerationResult{}
	}

	prevFile := pageFileName(job.Category, job.Number-1)
	prevPath := filepath.Join(ctx.Root, job.Category.Dir, prevFile)

	patched, err := activateNextLink(prevPath, job.Entry.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return GenerationResult{}.warn(fmt.Errorf("previous song page %s not found: %w", prevFile, err))
		}
		return GenerationResult{}.warn(fmt.Errorf("error updating %s: %w", prevFile, err))
	}
	if !patched {
		slog.Debug("Previous page already links forward", "path", prevPath)
		return GenerationResult{}.step("linked", "%s next link already active", prevFile)
	}
	return GenerationResult{PagesPatched: 1}.step("linked", "%s → %s", prevFile, job.Entry.FilePath)
}

func activateNextLink(path, href string) (bool, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return false, err
	}
	_, next, err := navButtons(doc)
	if err != nil {
		return false, err
	}
	if isLink(next) {
		return false, nil
	}
	next.ReplaceWithHtml(navLinkHTML(NavLink{Href: href, Class: "nav-next", Arrow: "→", Enabled: true}))
	return true, saveDocument(path, doc)
}
