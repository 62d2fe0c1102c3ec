package generator_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"songbook/generator"
)

func TestE2E_FirstSongCreatesSite(t *testing.T) {
	tmpDir := createTempDir(t, "e2e-first-")
	defer os.RemoveAll(tmpDir)

	input := createTestFile(t, tmpDir, "song.txt", "CATEGORY: english\nTITLE: Test\nSTANZA 1:\nHello\nworld\n")
	site := filepath.Join(tmpDir, "site")
	os.MkdirAll(site, 0755)

	job, result := generator.AddSong(testContext(site), input)
	if result.Failed() {
		t.Fatalf("AddSong() failed: %v %v", result.Fatal, result.Warnings)
	}
	if job.Number != 1 || job.Entry.FilePath != "eng-001.html" {
		t.Errorf("job = %d %s, want 1 eng-001.html", job.Number, job.Entry.FilePath)
	}
	if result.PagesGenerated != 1 || result.ListingsCreated != 1 || result.OverviewsUpdated != 1 {
		t.Errorf("unexpected result counters: %+v", result)
	}

	page := loadDoc(t, filepath.Join(site, "english", "eng-001.html"))
	if got := strings.TrimSpace(page.Find(".song-title-text").Text()); got != "1 - Test" {
		t.Errorf("song title = %q, want %q", got, "1 - Test")
	}
	if got := page.Find(".stanza-lines").Text(); got != "Hello\nworld" {
		t.Errorf("song lines = %q, want %q", got, "Hello\nworld")
	}
	if page.Find(".title-row a.nav-prev").Length() != 0 {
		t.Error("first song should have a disabled previous link")
	}
	if href, _ := page.Find(".title-row a.nav-next").Attr("href"); href != "eng-002.html" {
		t.Errorf("next link = %q, want eng-002.html", href)
	}

	listing := loadDoc(t, filepath.Join(site, "english", "index.html"))
	rows := listing.Find("#song-list li")
	if rows.Length() != 1 || rows.Text() != "1 - Test" {
		t.Errorf("listing rows = %d %q, want one row %q", rows.Length(), rows.Text(), "1 - Test")
	}
	if got := listing.Find("h2").First().Text(); got != "1 songs" {
		t.Errorf("listing count = %q, want %q", got, "1 songs")
	}
	script := listing.Find("script").Text()
	if !strings.Contains(script, `{"num":1,"title":"Test","file":"eng-001.html"}`) {
		t.Errorf("songs array missing entry:\n%s", script)
	}

	if got := overviewCount(t, site, "English"); got != "1 songs" {
		t.Errorf("overview English count = %q, want %q", got, "1 songs")
	}
}

func TestE2E_SecondSongLinksPredecessor(t *testing.T) {
	tmpDir := createTempDir(t, "e2e-second-")
	defer os.RemoveAll(tmpDir)

	ctx := testContext(tmpDir)
	ctx.Headroom = 0

	first := createTestFile(t, tmpDir, "one.txt", "CATEGORY: English\nTITLE: One\nSTANZA 1:\nfirst\n")
	second := createTestFile(t, tmpDir, "two.txt", "CATEGORY: English\nTITLE: Two\nCHORUS:\nsecond\n")

	if _, result := generator.AddSong(ctx, first); result.Failed() {
		t.Fatalf("first AddSong() failed: %v %v", result.Fatal, result.Warnings)
	}

	onePath := filepath.Join(tmpDir, "english", "eng-001.html")
	if loadDoc(t, onePath).Find(".title-row a.nav-next").Length() != 0 {
		t.Fatal("without headroom the only song should have no next link")
	}

	job, result := generator.AddSong(ctx, second)
	if result.Failed() {
		t.Fatalf("second AddSong() failed: %v %v", result.Fatal, result.Warnings)
	}
	if job.Number != 2 || result.PagesPatched != 1 {
		t.Errorf("job.Number = %d, PagesPatched = %d, want 2 and 1", job.Number, result.PagesPatched)
	}

	if href, _ := loadDoc(t, onePath).Find(".title-row a.nav-next").Attr("href"); href != "eng-002.html" {
		t.Errorf("eng-001 next link = %q, want eng-002.html", href)
	}
	two := loadDoc(t, filepath.Join(tmpDir, "english", "eng-002.html"))
	if href, _ := two.Find(".title-row a.nav-prev").Attr("href"); href != "eng-001.html" {
		t.Errorf("eng-002 prev link = %q, want eng-001.html", href)
	}

	var rows []string
	loadDoc(t, filepath.Join(tmpDir, "english", "index.html")).Find("#song-list li").Each(func(_ int, s *goquery.Selection) {
		rows = append(rows, s.Text())
	})
	if strings.Join(rows, "|") != "1 - One|2 - Two" {
		t.Errorf("listing rows = %v", rows)
	}
	if got := overviewCount(t, tmpDir, "English"); got != "2 songs" {
		t.Errorf("overview English count = %q, want %q", got, "2 songs")
	}
}

func TestE2E_NumbersContinueAfterGaps(t *testing.T) {
	tmpDir := createTempDir(t, "e2e-gaps-")
	defer os.RemoveAll(tmpDir)

	ctx := testContext(tmpDir)
	hindi, _ := ctx.Categories.Lookup("hindi")
	if err := generator.CreateTestPages(tmpDir, hindi, 1, 3, 4); err != nil {
		t.Fatal(err)
	}

	input := createTestFile(t, tmpDir, "song.txt", "CATEGORY: hindi\nTITLE: Naya Geet\nCHORUS:\nहल्लेलूयाह\n")
	job, result := generator.AddSong(ctx, input)
	if result.Fatal != nil {
		t.Fatalf("AddSong() fatal = %v", result.Fatal)
	}
	if job.Number != 5 {
		t.Errorf("job.Number = %d, want 5", job.Number)
	}
	// hin-004.html is a stub without navigation
	if len(result.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one predecessor warning", result.Warnings)
	}

	page := loadDoc(t, filepath.Join(tmpDir, "hindi", "hin-005.html"))
	if got := page.Find(".stanza-label").Text(); got != "कोरस" {
		t.Errorf("chorus label = %q, want %q", got, "कोरस")
	}
	if page.Find(".stanza.chorus").Length() != 1 {
		t.Error("chorus section missing chorus class")
	}
	if got := overviewCount(t, tmpDir, "Hindi"); got != "5 songs" {
		t.Errorf("overview Hindi count = %q, want %q", got, "5 songs")
	}
}

func TestE2E_RejectedInputWritesNothing(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{"unknown_category", "CATEGORY: klingon\nTITLE: Q\nSTANZA 1:\nx\n", generator.ErrUnknownCategory},
		{"missing_title", "CATEGORY: english\nSTANZA 1:\nx\n", generator.ErrMalformedInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := createTempDir(t, "e2e-reject-")
			defer os.RemoveAll(tmpDir)

			input := createTestFile(t, tmpDir, "bad.txt", tt.content)
			site := filepath.Join(tmpDir, "site")
			os.MkdirAll(site, 0755)

			_, result := generator.AddSong(testContext(site), input)
			if !errors.Is(result.Fatal, tt.target) {
				t.Fatalf("Fatal = %v, want %v", result.Fatal, tt.target)
			}
			if !result.Failed() {
				t.Error("Failed() = false for a rejected input")
			}

			entries, _ := os.ReadDir(site)
			if len(entries) != 0 {
				t.Errorf("site was modified: %d entries", len(entries))
			}

			var out bytes.Buffer
			result.PrintSummary(&out, nil)
			if !strings.Contains(out.String(), "error") {
				t.Errorf("summary does not report the error:\n%s", out.String())
			}
		})
	}
}

func TestE2E_OrgInput(t *testing.T) {
	tmpDir := createTempDir(t, "e2e-org-")
	defer os.RemoveAll(tmpDir)

	input := createTestFile(t, tmpDir, "song.org", `#+CATEGORY: youth camp
#+TITLE: Camp Fire

* Stanza 1
Gather round

* Chorus
Sing it loud
`)
	job, result := generator.AddSong(testContext(tmpDir), input)
	if result.Failed() {
		t.Fatalf("AddSong() failed: %v %v", result.Fatal, result.Warnings)
	}
	if job.Entry.FilePath != "yc-001.html" {
		t.Errorf("file = %q, want yc-001.html", job.Entry.FilePath)
	}

	page := loadDoc(t, filepath.Join(tmpDir, "youth-camp", "yc-001.html"))
	var text []string
	page.Find(".stanza-lines").Each(func(_ int, s *goquery.Selection) {
		text = append(text, s.Text())
	})
	if strings.Join(text, "|") != "Gather round|Sing it loud" {
		t.Errorf("visible lyrics = %v", text)
	}
}

func TestE2E_RelinkAfterDeletion(t *testing.T) {
	tmpDir := createTempDir(t, "e2e-relink-")
	defer os.RemoveAll(tmpDir)

	ctx := testContext(tmpDir)
	for i, title := range []string{"A", "B", "C"} {
		input := createTestFile(t, tmpDir, title+".txt", "CATEGORY: special\nTITLE: "+title+"\nSTANZA 1:\nline\n")
		if _, result := generator.AddSong(ctx, input); result.Failed() {
			t.Fatalf("AddSong(%d) failed: %v %v", i, result.Fatal, result.Warnings)
		}
	}
	os.Remove(filepath.Join(tmpDir, "special", "spe-002.html"))

	special, _ := ctx.Categories.Lookup("special")
	result := generator.Relink(t.Context(), tmpDir, special)
	if result.Failed() {
		t.Fatalf("Relink() failed: %v %v", result.Fatal, result.Warnings)
	}

	first := loadDoc(t, filepath.Join(tmpDir, "special", "spe-001.html"))
	if href, _ := first.Find(".title-row a.nav-next").Attr("href"); href != "spe-003.html" {
		t.Errorf("spe-001 next = %q, want spe-003.html", href)
	}
	last := loadDoc(t, filepath.Join(tmpDir, "special", "spe-003.html"))
	if href, _ := last.Find(".title-row a.nav-prev").Attr("href"); href != "spe-001.html" {
		t.Errorf("spe-003 prev = %q, want spe-001.html", href)
	}
	if last.Find(".title-row a.nav-next").Length() != 0 {
		t.Error("last page should have a disabled next link after relinking")
	}

	// A new song still gets the next number, not the freed one.
	input := createTestFile(t, tmpDir, "D.txt", "CATEGORY: special\nTITLE: D\nSTANZA 1:\nline\n")
	job, _ := generator.AddSong(ctx, input)
	if job.Number != 4 {
		t.Errorf("job.Number = %d, want 4", job.Number)
	}
}

func TestE2E_ConfiguredCategoryWithEscapedName(t *testing.T) {
	tmpDir := createTempDir(t, "e2e-configured-")
	defer os.RemoveAll(tmpDir)

	ctx := testContext(tmpDir)
	ctx.Categories = ctx.Categories.With(generator.NewCategory("kids", "kid", "kids", "Kids+Teens", ""))

	for i := 1; i <= 2; i++ {
		input := createTestFile(t, tmpDir, "kids.txt", "CATEGORY: kids\nTITLE: Jump\nCHORUS:\nup and down\n")
		job, result := generator.AddSong(ctx, input)
		if result.Failed() {
			t.Fatalf("AddSong(%d) failed: %v %v", i, result.Fatal, result.Warnings)
		}
		if job.Number != i {
			t.Errorf("job.Number = %d, want %d", job.Number, i)
		}
	}

	if got := overviewCount(t, tmpDir, "Kids+Teens"); got != "2 songs" {
		t.Errorf("overview Kids+Teens count = %q, want %q", got, "2 songs")
	}
}

func testContext(root string) generator.BuildContext {
	return generator.CreateTestBuildContext(root)
}

func overviewCount(t *testing.T, root, display string) string {
	t.Helper()
	doc := loadDoc(t, filepath.Join(root, "index.html"))
	var count string
	doc.Find(".categories li").Each(func(_ int, s *goquery.Selection) {
		if s.Find(".category-name").Text() == display {
			count = s.Find(".song-count").Text()
		}
	})
	return count
}

func loadDoc(t *testing.T, path string) *goquery.Document {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to parse %s: %v", path, err)
	}
	return doc
}

func createTempDir(t *testing.T, prefix string) string {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	return dir
}

func createTestFile(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}
