package intake

import (
	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/catalog"
)

// Tracking is the per-(session, section) bookkeeping of which leaf paths
// remain unanswered. It is persisted alongside the section record and is
// always derivable from it; the in-memory copy is a cache, not truth.
type Tracking struct {
	Section       catalog.Section `json:"section"`
	UnaskedFields []string        `json:"unasked_fields"`
	IsComplete    bool            `json:"is_complete"`
	PushedToEHR   bool            `json:"pushed_to_ehr"`
	// AskCounts records how many targeted turns each still-empty path has
	// survived, to bound re-asking of unanswerable fields.
	AskCounts map[string]int `json:"ask_counts,omitempty"`
}

// NewTracking builds the tracker for a section: the full leaf-path set minus
// every path the record already holds data for, minus any paths covered by
// upstream pre-population.
func NewTracking(section catalog.Section, record Record, prepopulated []string, logger *zap.Logger) *Tracking {
	if logger == nil {
		logger = zap.NewNop()
	}

	all := catalog.AllLeafPaths(section)
	prepop := make(map[string]bool, len(prepopulated))
	for _, p := range prepopulated {
		prepop[p] = true
	}

	unasked := make([]string, 0, len(all))
	for _, path := range all {
		if catalog.HasData(record, path) || prepop[path] {
			continue
		}
		unasked = append(unasked, path)
	}

	logger.Info("tracking initialized",
		zap.String("section", string(section)),
		zap.Int("total_fields", len(all)),
		zap.Int("unasked_fields", len(unasked)))

	return &Tracking{
		Section:       section,
		UnaskedFields: unasked,
		IsComplete:    len(unasked) == 0,
		AskCounts:     make(map[string]int),
	}
}

// MarkAsked removes the given paths from the unasked set. Removing a path
// that is already gone is a no-op.
func (t *Tracking) MarkAsked(paths ...string) {
	remove := make(map[string]bool, len(paths))
	for _, p := range paths {
		remove[p] = true
	}
	kept := t.UnaskedFields[:0]
	for _, p := range t.UnaskedFields {
		if !remove[p] {
			kept = append(kept, p)
		}
	}
	t.UnaskedFields = kept
}

// Unasked reports whether a path is still waiting to be answered.
func (t *Tracking) Unasked(path string) bool {
	for _, p := range t.UnaskedFields {
		if p == path {
			return true
		}
	}
	return false
}

// Complete reports whether the section has no fields left to ask. This is
// the sole completion criterion.
func (t *Tracking) Complete() bool {
	return len(t.UnaskedFields) == 0
}

// NextGroup returns the first question group, in catalog order, with at
// least one member still unasked. When the catalog defines no groups for
// the section, it falls back to the single next unasked field.
func (t *Tracking) NextGroup() []string {
	for _, group := range catalog.QuestionGroups(t.Section) {
		var pending []string
		for _, path := range group {
			if t.Unasked(path) {
				pending = append(pending, path)
			}
		}
		if len(pending) > 0 {
			return pending
		}
	}
	if len(t.UnaskedFields) > 0 {
		return []string{t.UnaskedFields[0]}
	}
	return nil
}

// ResetForSection retires this tracker and reinitializes it for a new
// section.
func (t *Tracking) ResetForSection(section catalog.Section, record Record, logger *zap.Logger) {
	next := NewTracking(section, record, nil, logger)
	*t = *next
}
