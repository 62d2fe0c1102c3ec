package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

const (
	listEndMarker  = "<!-- song-list:end -->"
	arrayEndMarker = "/* songs:end */"
	listingFile    = "index.html"
	overviewFile   = "index.html"
	relinkWorkers  = 8
)

// AppendListing adds the job's entry to the category listing page, creating
// the page first when it does not exist yet. The visible list and the songs
// array are updated in the same write.
func AppendListing(job *SongJob, ctx BuildContext, tmpl *Templates) GenerationResult {
	slog.Debug("Starting Phase 3: updating listing page", "category", job.Category.Name)

	var result GenerationResult
	path := filepath.Join(ctx.Root, job.Category.Dir, listingFile)
	rel := filepath.Join(job.Category.Dir, listingFile)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data, err = renderListing(tmpl, job.Category, ctx.SiteName)
		if err != nil {
			return result.warn(fmt.Errorf("error rendering listing page %s: %w", rel, err))
		}
		result.ListingsCreated = 1
		result = result.step("listing", "created %s", rel)
	} else if err != nil {
		return result.warn(fmt.Errorf("error reading listing page %s: %w", rel, err))
	}

	content, err := appendEntry(string(data), job.Entry)
	if err != nil {
		return result.warn(fmt.Errorf("error updating listing page %s: %w", rel, err))
	}
	content = setListingCount(content, job.Number)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return result.warn(fmt.Errorf("error writing listing page %s: %w", rel, err))
	}

	result.ListingsUpdated = 1
	return result.step("listing", "added %d - %s to %s", job.Entry.Number, job.Entry.Title, rel)
}

// UpdateOverview sets the category's song count on the site overview page,
// creating the overview when it does not exist yet.
func UpdateOverview(job *SongJob, ctx BuildContext, tmpl *Templates) GenerationResult {
	var result GenerationResult
	path := filepath.Join(ctx.Root, overviewFile)

	created := false
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data, err = renderOverview(tmpl, ctx)
		if err != nil {
			return result.warn(fmt.Errorf("error rendering overview page: %w", err))
		}
		created = true
		result = result.step("overview", "created %s", overviewFile)
	} else if err != nil {
		return result.warn(fmt.Errorf("error reading overview page: %w", err))
	}

	content, ok := setOverviewCount(string(data), job.Category, job.Number)
	if !ok {
		if created {
			if err := os.WriteFile(path, data, 0644); err != nil {
				result = result.warn(fmt.Errorf("error writing overview page: %w", err))
			}
		}
		return result.warn(fmt.Errorf("overview page has no %q song count", job.Category.Display))
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return result.warn(fmt.Errorf("error writing overview page: %w", err))
	}

	result.OverviewsUpdated = 1
	return result.step("overview", "%s count set to %d", job.Category.Display, job.Number)
}

func renderListing(tmpl *Templates, cat Category, siteName string) ([]byte, error) {
	var buf bytes.Buffer
	err := tmpl.Listing.ExecuteTemplate(&buf, listingTemplate, ListingPageData{
		SiteName: siteName,
		Category: cat,
		ListEnd:  template.HTML(listEndMarker),
		ArrayEnd: template.JS(arrayEndMarker),
	})
	return buf.Bytes(), err
}

// renderOverview builds an overview page listing every known category with
// the highest page number found on disk as its count.
func renderOverview(tmpl *Templates, ctx BuildContext) ([]byte, error) {
	data := OverviewPageData{SiteName: ctx.SiteName}
	for _, cat := range ctx.Categories.orDefault() {
		numbers, err := ExistingNumbers(ctx.Root, cat)
		if err != nil {
			return nil, err
		}
		count := 0
		if len(numbers) > 0 {
			count = numbers[len(numbers)-1]
		}
		data.Categories = append(data.Categories, CategoryCount{Category: cat, Count: count})
	}

	var buf bytes.Buffer
	if err := tmpl.Overview.ExecuteTemplate(&buf, overviewTemplate, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// appendEntry inserts entry as the last row of the visible list and the last
// element of the songs array. Pages written before the end markers existed
// are patched at the list's </ul> and the array's closing "];".
func appendEntry(content string, entry CatalogEntry) (string, error) {
	row := fmt.Sprintf(`<li><a href="%s">%d - %s</a></li>`+"\n",
		html.EscapeString(entry.FilePath), entry.Number, html.EscapeString(entry.Title))

	at := strings.LastIndex(content, listEndMarker)
	if at == -1 {
		at = legacyListEnd(content)
	}
	if at == -1 {
		return "", fmt.Errorf("song list not found")
	}
	content = insertBefore(content, at, row)

	obj, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}
	item := string(obj) + ",\n"

	at = strings.LastIndex(content, arrayEndMarker)
	if at == -1 {
		at = legacyArrayEnd(content)
	}
	if at == -1 {
		return "", fmt.Errorf("songs array not found")
	}
	return insertBefore(content, at, item), nil
}

func legacyListEnd(content string) int {
	start := strings.Index(content, `id="song-list"`)
	if start == -1 {
		start = 0
	}
	end := strings.Index(content[start:], "</ul>")
	if end == -1 {
		return -1
	}
	return start + end
}

func legacyArrayEnd(content string) int {
	start := strings.Index(content, "songs = [")
	if start == -1 {
		start = 0
	}
	loc := reLegacyArrayEnd.FindStringIndex(content[start:])
	if loc == nil {
		return -1
	}
	return start + loc[0]
}

// setListingCount rewrites the "<h2>N songs</h2>" heading. The count follows
// the sequence number, not the number of rows on the page.
func setListingCount(content string, count int) string {
	loc := reListingCount.FindStringSubmatchIndex(content)
	if loc == nil {
		return content
	}
	return content[:loc[4]] + strconv.Itoa(count) + content[loc[5]:]
}

// setOverviewCount sets the count in the overview row of cat. Rows are found
// by their data-category attribute, or by the visible display name on pages
// written without it. Both are compared after unescaping, so the result does
// not depend on how the page escaped them.
func setOverviewCount(content string, cat Category, count int) (string, bool) {
	for _, m := range reOverviewKey.FindAllStringSubmatchIndex(content, -1) {
		var matched bool
		if m[2] != -1 {
			matched = normalizeCategoryName(html.UnescapeString(content[m[2]:m[3]])) == cat.Name
		} else {
			matched = strings.TrimSpace(html.UnescapeString(content[m[4]:m[5]])) == cat.Display
		}
		if !matched {
			continue
		}

		row := content[m[1]:]
		if end := strings.Index(row, "</li>"); end != -1 {
			row = row[:end]
		}
		loc := reOverviewCount.FindStringSubmatchIndex(row)
		if loc == nil {
			continue
		}
		at := m[1]
		return content[:at+loc[2]] + strconv.Itoa(count) + content[at+loc[3]:], true
	}
	return content, false
}

// Relink rewrites the navigation of every page in the category so that each
// page links to its actual neighbours. The last page's next link is
// disabled; adding a song activates it again.
func Relink(ctx context.Context, root string, cat Category) GenerationResult {
	var result GenerationResult

	pages, err := listPages(root, cat)
	if err != nil {
		result.Fatal = err
		return result
	}
	if len(pages) == 0 {
		return result.step("relink", "no pages in %s", cat.Dir)
	}

	var patched int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(relinkWorkers)

	warnings := make([]error, len(pages))
	for i, page := range pages {
		prev := NavLink{Class: "nav-prev", Arrow: "←"}
		if i > 0 {
			prev.Href, prev.Enabled = pages[i-1].File, true
		}
		next := NavLink{Class: "nav-next", Arrow: "→"}
		if i < len(pages)-1 {
			next.Href, next.Enabled = pages[i+1].File, true
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(root, cat.Dir, page.File)
			changed, err := setNavigation(path, prev, next)
			if err != nil {
				warnings[i] = fmt.Errorf("error relinking %s: %w", page.File, err)
				return nil
			}
			if changed {
				atomic.AddInt64(&patched, 1)
				slog.Debug("Relinked page", "path", path)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		result.Fatal = err
	}

	for _, w := range warnings {
		if w != nil {
			result = result.warn(w)
		}
	}
	result.PagesPatched = int(patched)
	return result.step("relink", "%d of %d pages in %s updated", patched, len(pages), cat.Dir)
}

func setNavigation(path string, prev, next NavLink) (bool, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return false, err
	}
	prevSel, nextSel, err := navButtons(doc)
	if err != nil {
		return false, err
	}

	if navMatches(prevSel, prev) && navMatches(nextSel, next) {
		return false, nil
	}
	prevSel.ReplaceWithHtml(navLinkHTML(prev))
	nextSel.ReplaceWithHtml(navLinkHTML(next))
	return true, saveDocument(path, doc)
}

func navMatches(s *goquery.Selection, want NavLink) bool {
	if want.Enabled {
		return isActiveLink(s, want.Href)
	}
	return !isLink(s)
}
