package generator

// Generator Package Structure:
//
//   - generator.go      - Entry points wiring the phases together
//   - types.go          - Type definitions, regex patterns, embedded templates, pipeline
//   - category.go       - Category table and prefix derivation
//   - phase1.go         - Song file parsing and sequence number assignment
//   - orgsong.go        - Org-mode song input
//   - phase2.go         - Song page rendering and predecessor linking
//   - phase3.go         - Listing page, overview page and relinking
//
// The site root is the only state. A run writes the new song page first and
// then patches the predecessor, the listing and the overview in turn; there
// is no rollback, so a failure part way leaves earlier files updated.

// AddSong runs the whole add pipeline for one input file.
func AddSong(ctx BuildContext, inputPath string) (*SongJob, GenerationResult) {
	ctx.Categories = ctx.Categories.orDefault()

	tmpl, err := SetupTemplates(ctx.Root)
	if err != nil {
		return &SongJob{Source: inputPath}, GenerationResult{Fatal: err}
	}

	return NewPipeline(ctx, &SongJob{Source: inputPath}).
		WithFullPhase(ReadSong).
		WithFullPhase(AssignNumber).
		WithOutputOnlyPhase(func(job *SongJob, ctx BuildContext) GenerationResult {
			return WriteSongPage(job, ctx, tmpl)
		}).
		WithOutputOnlyPhase(LinkPredecessor).
		WithOutputOnlyPhase(func(job *SongJob, ctx BuildContext) GenerationResult {
			return AppendListing(job, ctx, tmpl)
		}).
		WithOutputOnlyPhase(func(job *SongJob, ctx BuildContext) GenerationResult {
			return UpdateOverview(job, ctx, tmpl)
		}).
		Execute()
}
