package model

import "path/filepath"

type Project struct {
	ID   int64
	Name string
	Slug string

	// Disabled projects are preserved for history but excluded from sync
	// and from aggregate stats.
	Disabled bool

	AggregatedStats
	LatestTranslationID int64
}

// CheckoutPath is the root directory holding all VCS checkouts for the
// project.
func (p *Project) CheckoutPath(workdir string) string {
	return filepath.Join(workdir, "projects", p.Slug)
}

// ProjectLocale is the join row between a project and a locale, carrying
// its own stats rollup and activity pointer.
type ProjectLocale struct {
	ID        int64
	ProjectID int64
	LocaleID  int64

	AggregatedStats
	LatestTranslationID int64
}
