package generator

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

var (
	ErrMalformedInput  = errors.New("malformed song input")
	ErrUnknownCategory = fmt.Errorf("%w: unsupported category", ErrMalformedInput)
)

// BuildContext holds the settings shared by every phase of a run. Root is
// the site root; Headroom is how many songs past the new one a fresh page
// assumes when deciding whether its next link is live.
type BuildContext struct {
	Root       string
	SiteName   string
	Headroom   int
	Categories Categories
}

var (
	reCategoryField  = regexp.MustCompile(`(?im)^[ \t]*CATEGORY:[ \t]*(\S.*?)[ \t]*$`)
	reTitleField     = regexp.MustCompile(`(?im)^[ \t]*TITLE:[ \t]*(\S.*?)[ \t]*$`)
	reSectionHeading = regexp.MustCompile(`(?i)^(?:STANZA\s+(\d+)|CHORUS)\s*(?::.*)?$`)
	reFieldLine      = regexp.MustCompile(`(?i)^(?:CATEGORY|TITLE)\s*:`)
	reListingCount   = regexp.MustCompile(`(<h2>\s*)(\d+)(\s*songs?\s*</h2>)`)
	reLegacyArrayEnd = regexp.MustCompile(`\]\s*;`)
	reOverviewKey    = regexp.MustCompile(`(?i)data-category="([^"]*)"|<span class="category-name">([^<]*)</span>`)
	reOverviewCount  = regexp.MustCompile(`(?i)<span class="song-count">\s*(\d+)\s*songs?</span>`)
)

//go:embed templates/*.html
var templates embed.FS

// SectionKind tells a stanza from a chorus.
type SectionKind int

const (
	Stanza SectionKind = iota
	Chorus
)

func (k SectionKind) String() string {
	if k == Chorus {
		return "chorus"
	}
	return "stanza"
}

// Section is one stanza or chorus. Label is the stanza numeral as written or
// the category's chorus word.
type Section struct {
	Kind  SectionKind
	Label string
	Lines []string
}

// SongRecord is one parsed input file. Sections are kept in rendering order.
type SongRecord struct {
	Category string
	Title    string
	Sections []Section
}

// CatalogEntry is one element of the songs array on a listing page.
type CatalogEntry struct {
	Number   int    `json:"num"`
	Title    string `json:"title"`
	FilePath string `json:"file"`
}

// SongJob carries one input file through the add pipeline.
type SongJob struct {
	Source   string
	Record   *SongRecord
	Category Category
	Number   int
	Entry    CatalogEntry
}

// NavLink is a previous or next button in a song page header. A disabled
// link renders as a placeholder span and has no Href.
type NavLink struct {
	Href    string
	Class   string
	Arrow   string
	Enabled bool
}

// SongPageData is the input of the song page template.
type SongPageData struct {
	SiteName string
	Number   int
	Title    string
	Category Category
	Sections []Section
	Prev     NavLink
	Next     NavLink
}

// ListingPageData is the input of the listing page template. ListEnd and
// ArrayEnd are the markers later rows are inserted before.
type ListingPageData struct {
	SiteName string
	Category Category
	Count    int
	ListEnd  template.HTML
	ArrayEnd template.JS
}

// CategoryCount is one row of the overview page.
type CategoryCount struct {
	Category
	Count int
}

// OverviewPageData is the input of the overview page template.
type OverviewPageData struct {
	SiteName   string
	Categories []CategoryCount
}

// Step is one line of the progress log.
type Step struct {
	Name   string
	Detail string
}

// GenerationResult collects counters, progress steps and problems from the
// phases of a run. Fatal stops the pipeline; Warnings do not.
type GenerationResult struct {
	PagesGenerated   int
	PagesPatched     int
	ListingsCreated  int
	ListingsUpdated  int
	OverviewsUpdated int
	Steps            []Step
	Warnings         []error
	Fatal            error
	startTime        time.Time
}

func (r GenerationResult) Add(other GenerationResult) GenerationResult {
	fatal := r.Fatal
	if fatal == nil {
		fatal = other.Fatal
	}
	return GenerationResult{
		PagesGenerated:   r.PagesGenerated + other.PagesGenerated,
		PagesPatched:     r.PagesPatched + other.PagesPatched,
		ListingsCreated:  r.ListingsCreated + other.ListingsCreated,
		ListingsUpdated:  r.ListingsUpdated + other.ListingsUpdated,
		OverviewsUpdated: r.OverviewsUpdated + other.OverviewsUpdated,
		Steps:            append(append([]Step(nil), r.Steps...), other.Steps...),
		Warnings:         append(append([]error(nil), r.Warnings...), other.Warnings...),
		Fatal:            fatal,
		startTime:        r.startTime,
	}
}

// Failed reports whether the run should end with a non-zero exit status.
func (r GenerationResult) Failed() bool {
	return r.Fatal != nil || len(r.Warnings) > 0
}

func (r GenerationResult) step(name, format string, args ...any) GenerationResult {
	r.Steps = append(r.Steps, Step{Name: name, Detail: fmt.Sprintf(format, args...)})
	return r
}

func (r GenerationResult) warn(err error) GenerationResult {
	r.Warnings = append(r.Warnings, err)
	return r
}

func (r GenerationResult) PrintSummary(w io.Writer, job *SongJob) {
	duration := time.Since(r.startTime)

	pastelMagenta := color.RGB(255, 182, 193).SprintFunc()
	pastelBlue := color.RGB(173, 216, 230).SprintFunc()
	pastelGreen := color.RGB(152, 251, 152).SprintFunc()
	pastelRed := color.RGB(255, 160, 160).SprintFunc()
	pastelYellow := color.RGB(255, 255, 224).SprintFunc()

	for _, s := range r.Steps {
		fmt.Fprintf(w, "%s %-10s %s\n", pastelGreen("✓"), s.Name, s.Detail)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "%s %-10s %s\n", pastelYellow("!"), "warning", warning)
	}
	if r.Fatal != nil {
		fmt.Fprintf(w, "%s %-10s %s\n", pastelRed("✗"), "error", r.Fatal)
		return
	}

	var lines []string
	if job != nil && job.Record != nil {
		lines = append(lines,
			fmt.Sprintf("%s  %s", pastelMagenta("New song:"), fmt.Sprintf("%d - %s", job.Number, job.Record.Title)),
			fmt.Sprintf("Category:          %s", pastelBlue(job.Category.Display)),
		)
	}
	lines = append(lines,
		fmt.Sprintf("Pages generated:   %s", pastelGreen(r.PagesGenerated)),
		fmt.Sprintf("Pages patched:     %s", pastelGreen(r.PagesPatched)),
		fmt.Sprintf("Listings created:  %s", pastelGreen(r.ListingsCreated)),
		fmt.Sprintf("Listings updated:  %s", pastelGreen(r.ListingsUpdated)),
		fmt.Sprintf("Overview updated:  %s", pastelGreen(r.OverviewsUpdated)),
	)
	if len(r.Warnings) > 0 {
		lines = append(lines, fmt.Sprintf("Warnings:          %s", pastelRed(len(r.Warnings))))
	}
	lines = append(lines, fmt.Sprintf("Duration:          %s", pastelYellow(duration.Round(time.Millisecond))))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("218")).
		Padding(0, 1)
	fmt.Fprintln(w, box.Render(strings.Join(lines, "\n")))
}

func (r *GenerationResult) SetStartTime(t time.Time) {
	r.startTime = t
}

// Pipeline runs a fixed list of phases over one SongJob.
type Pipeline struct {
	ctx    BuildContext
	job    *SongJob
	result GenerationResult
	phases []func(*Pipeline) (*SongJob, GenerationResult)
}

func NewPipeline(ctx BuildContext, job *SongJob) *Pipeline {
	return &Pipeline{
		ctx:    ctx,
		job:    job,
		phases: []func(*Pipeline) (*SongJob, GenerationResult){},
		result: GenerationResult{},
	}
}

// WithFullPhase adds a phase that fills in or replaces the job
func (p *Pipeline) WithFullPhase(phase func(*SongJob, BuildContext) (*SongJob, GenerationResult)) *Pipeline {
	p.phases = append(p.phases, func(pl *Pipeline) (*SongJob, GenerationResult) {
		return phase(pl.job, pl.ctx)
	})
	return p
}

// WithOutputOnlyPhase wraps a phase that only returns GenerationResult
func (p *Pipeline) WithOutputOnlyPhase(phase func(*SongJob, BuildContext) GenerationResult) *Pipeline {
	p.phases = append(p.phases, func(pl *Pipeline) (*SongJob, GenerationResult) {
		return pl.job, phase(pl.job, pl.ctx)
	})
	return p
}

// Execute runs the phases in order and stops at the first fatal error.
// Nothing already written is undone.
func (p *Pipeline) Execute() (*SongJob, GenerationResult) {
	startTime := time.Now()

	for _, phase := range p.phases {
		var newResult GenerationResult
		p.job, newResult = phase(p)
		p.result = p.result.Add(newResult)
		if p.result.Fatal != nil {
			break
		}
	}

	p.result.SetStartTime(startTime)
	return p.job, p.result
}
