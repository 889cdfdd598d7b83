package extract

import (
	"maps"

	"github.com/Epistemic-Technology/docextract/models"
)

// WindowPasses holds every pass's extractions for one window, indexed by
// pass number. A failed pass contributes a nil slice.
type WindowPasses struct {
	Window models.TextWindow
	Passes [][]models.Extraction
}

// MergeOptions tunes Merge.
type MergeOptions struct {
	// ResolveOverlaps drops a record from a later pass whose interval
	// overlaps a record of the same class found by an earlier pass.
	ResolveOverlaps bool
}

type group struct {
	rep       models.Extraction
	members   []models.Extraction
	passes    map[int]bool
	firstPass int
}

// Merge collapses duplicate extractions found by different passes over the
// same window and concatenates the survivors in window order, then in
// first-seen order within a window.
//
// Two records from different passes are duplicates when their class
// matches and either their text or their (non-empty) attributes are
// identical. The first-seen record represents the group; its attributes are
// replaced by a later member's only when that member has strictly more
// non-empty values. Records from the same pass never collapse.
func Merge(windows []WindowPasses, opts MergeOptions) []models.Extraction {
	var out []models.Extraction
	for _, wp := range windows {
		out = append(out, mergeWindow(wp.Passes, opts)...)
	}
	return out
}

func mergeWindow(passes [][]models.Extraction, opts MergeOptions) []models.Extraction {
	var groups []*group
	for p, records := range passes {
		for _, rec := range records {
			if g := findGroup(groups, rec, p); g != nil {
				g.add(rec, p)
				continue
			}
			if opts.ResolveOverlaps && overlapsEarlierPass(groups, rec, p) {
				continue
			}
			groups = append(groups, &group{
				rep:       rec,
				members:   []models.Extraction{rec},
				passes:    map[int]bool{p: true},
				firstPass: p,
			})
		}
	}

	out := make([]models.Extraction, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.rep)
	}
	return out
}

func findGroup(groups []*group, rec models.Extraction, pass int) *group {
	for _, g := range groups {
		if g.rep.Class != rec.Class || g.passes[pass] {
			continue
		}
		for _, m := range g.members {
			if duplicate(m, rec) {
				return g
			}
		}
	}
	return nil
}

func (g *group) add(rec models.Extraction, pass int) {
	g.members = append(g.members, rec)
	g.passes[pass] = true
	if rec.NonEmptyAttributes() > g.rep.NonEmptyAttributes() {
		g.rep.Attributes = maps.Clone(rec.Attributes)
	}
	if g.rep.Interval == nil && rec.Interval != nil {
		iv := *rec.Interval
		g.rep.Interval = &iv
	}
}

// duplicate assumes the classes already match. Empty attribute maps never
// count as identical, otherwise every unattributed record of a class would
// collapse into one.
func duplicate(a, b models.Extraction) bool {
	if a.Text == b.Text {
		return true
	}
	if len(a.Attributes) == 0 || len(b.Attributes) == 0 {
		return false
	}
	return maps.Equal(a.Attributes, b.Attributes)
}

func overlapsEarlierPass(groups []*group, rec models.Extraction, pass int) bool {
	if rec.Interval == nil {
		return false
	}
	for _, g := range groups {
		if g.firstPass >= pass || g.rep.Class != rec.Class || g.rep.Interval == nil {
			continue
		}
		if g.rep.Interval.Overlaps(*rec.Interval) {
			return true
		}
	}
	return false
}
