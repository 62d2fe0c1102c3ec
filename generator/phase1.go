package generator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ReadSong parses job.Source into job.Record and resolves its category.
// Any failure here is fatal; nothing has been written yet.
func ReadSong(job *SongJob, ctx BuildContext) (*SongJob, GenerationResult) {
	slog.Debug("Starting Phase 1: reading song file", "path", job.Source)

	rec, err := ReadSongFile(job.Source, ctx.Categories)
	if err != nil {
		return job, GenerationResult{Fatal: err}
	}
	cat, _ := ctx.Categories.orDefault().Lookup(rec.Category)

	job.Record = rec
	job.Category = cat

	slog.Debug("Parsed song", "category", rec.Category, "title", rec.Title, "sections", len(rec.Sections))

	var result GenerationResult
	result = result.step("read", "%s", job.Source)
	result = result.step("category", "%s", cat.Name)
	result = result.step("title", "%s", rec.Title)
	result = result.step("sections", "%d", len(rec.Sections))
	return job, result
}

// AssignNumber picks the next free sequence number in the job's category.
func AssignNumber(job *SongJob, ctx BuildContext) (*SongJob, GenerationResult) {
	n, err := NextSequenceNumber(ctx.Root, job.Category)
	if err != nil {
		return job, GenerationResult{Fatal: err}
	}
	job.Number = n
	job.Entry = CatalogEntry{
		Number:   n,
		Title:    job.Record.Title,
		FilePath: pageFileName(job.Category, n),
	}
	return job, GenerationResult{}.step("number", "%d", n)
}

// ReadSongFile reads and parses one song file. Files ending in .org are read
// as org-mode documents, anything else as the plain text format.
func ReadSongFile(path string, cats Categories) (*SongRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading song file: %w", err)
	}
	text, err := decodeText(data)
	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".org") {
		return ParseOrg(text, path, cats)
	}
	return Parse(text, cats)
}

// Parse reads the plain text song format:
//
//	CATEGORY: hindi
//	TITLE: Song title
//
//	STANZA 1:
//	first line
//
//	CHORUS:
//	refrain
//
// Only the first CATEGORY and TITLE lines count. Headings without any
// non-blank body lines produce no section.
func Parse(text string, cats Categories) (*SongRecord, error) {
	cats = cats.orDefault()
	text = strings.ReplaceAll(text, "\r\n", "\n")

	categoryMatch := reCategoryField.FindStringSubmatch(text)
	titleMatch := reTitleField.FindStringSubmatch(text)
	if categoryMatch == nil || titleMatch == nil {
		return nil, fmt.Errorf("%w: CATEGORY and TITLE fields are required", ErrMalformedInput)
	}

	cat, ok := cats.Lookup(categoryMatch[1])
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCategory, strings.TrimSpace(categoryMatch[1]))
	}

	rec := &SongRecord{
		Category: cat.Name,
		Title:    strings.TrimSpace(titleMatch[1]),
	}

	var current *Section
	flush := func() {
		if current != nil && len(current.Lines) > 0 {
			rec.Sections = append(rec.Sections, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := reSectionHeading.FindStringSubmatch(trimmed); m != nil {
			flush()
			if m[1] != "" {
				current = &Section{Kind: Stanza, Label: m[1]}
			} else {
				current = &Section{Kind: Chorus, Label: cat.ChorusLabel}
			}
			continue
		}
		if reFieldLine.MatchString(trimmed) {
			flush()
			continue
		}
		if current == nil || trimmed == "" {
			continue
		}
		current.Lines = append(current.Lines, trimmed)
	}
	flush()

	return rec, nil
}

// NextSequenceNumber returns one more than the highest page number in the
// category directory, or 1 when there is none. The directory is created if
// missing. Numbers freed by deleted pages are never handed out again.
func NextSequenceNumber(root string, cat Category) (int, error) {
	dir := filepath.Join(root, cat.Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("error creating category directory: %w", err)
	}

	numbers, err := ExistingNumbers(root, cat)
	if err != nil {
		return 0, err
	}
	if len(numbers) == 0 {
		return 1, nil
	}
	return numbers[len(numbers)-1] + 1, nil
}

// ExistingNumbers lists the sequence numbers of the category's pages in
// ascending order. A missing directory yields no numbers.
func ExistingNumbers(root string, cat Category) ([]int, error) {
	pages, err := listPages(root, cat)
	if err != nil {
		return nil, err
	}
	numbers := make([]int, len(pages))
	for i, p := range pages {
		numbers[i] = p.Number
	}
	return numbers, nil
}

type pageRef struct {
	Number int
	File   string
}

func listPages(root string, cat Category) ([]pageRef, error) {
	dir := filepath.Join(root, cat.Dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error listing %s: %w", dir, err)
	}

	re := pageNamePattern(cat)
	var pages []pageRef
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			slog.Debug("Ignoring page with unusable number", "file", entry.Name())
			continue
		}
		pages = append(pages, pageRef{Number: n, File: entry.Name()})
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].Number < pages[j].Number
	})
	return pages, nil
}

func pageNamePattern(cat Category) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(cat.Prefix) + `-(\d+)\.html$`)
}
