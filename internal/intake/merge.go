package intake

import (
	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/catalog"
)

// MaxReasks is how many additional targeted turns a still-empty path may
// survive before the engine records the Declined sentinel and stops asking.
const MaxReasks = 2

// MergeOutcome reports what a turn's merge changed.
type MergeOutcome struct {
	Record Record
	// Filled lists paths removed from the unasked set because data arrived.
	Filled []string
	// Declined lists paths closed out with the Declined sentinel this turn.
	Declined []string
	// Dropped lists extracted paths rejected because the catalog does not
	// declare them.
	Dropped []string
}

// ApplyExtraction merges freshly extracted partial data into a section
// record and updates the tracker. Any catalog-known path the extraction
// found is accepted, not only the targeted ones: a patient may volunteer
// their email while being asked for a phone number. Unknown paths are
// dropped with a log entry so a hallucinated field name can never corrupt
// the record.
func ApplyExtraction(section catalog.Section, record Record, extracted Record, tracking *Tracking, targeted []string, logger *zap.Logger) MergeOutcome {
	if logger == nil {
		logger = zap.NewNop()
	}

	sanitized, dropped := sanitize(section, extracted)
	for _, path := range dropped {
		logger.Warn("dropping unrecognized extracted path",
			zap.String("section", string(section)),
			zap.String("path", path))
	}

	merged := Merge(record, sanitized)

	outcome := MergeOutcome{Record: merged, Dropped: dropped}

	// Remove every path that now holds data, whether targeted or not.
	for _, path := range append([]string(nil), tracking.UnaskedFields...) {
		if catalog.HasData(merged, path) {
			tracking.MarkAsked(path)
			delete(tracking.AskCounts, path)
			outcome.Filled = append(outcome.Filled, path)
		}
	}

	// Targeted paths the extraction failed to fill stay eligible for
	// re-asking a bounded number of turns, then get the sentinel so the
	// section can still complete.
	for _, path := range targeted {
		if !tracking.Unasked(path) {
			continue
		}
		if tracking.AskCounts == nil {
			tracking.AskCounts = make(map[string]int)
		}
		tracking.AskCounts[path]++
		if tracking.AskCounts[path] > MaxReasks {
			merged.Set(path, Declined)
			tracking.MarkAsked(path)
			delete(tracking.AskCounts, path)
			outcome.Declined = append(outcome.Declined, path)
			logger.Info("recording declined answer",
				zap.String("section", string(section)),
				zap.String("path", path))
		}
	}

	outcome.Record = merged
	tracking.IsComplete = tracking.Complete()
	return outcome
}

// sanitize rebuilds an extracted record keeping only catalog-declared leaf
// paths for the section.
func sanitize(section catalog.Section, extracted Record) (Record, []string) {
	clean := make(Record)
	var dropped []string
	for _, path := range extracted.LeafPaths() {
		value, ok := extracted.Get(path)
		if !ok || value == nil {
			continue
		}
		if !catalog.KnownPath(section, path) {
			dropped = append(dropped, path)
			continue
		}
		clean.Set(path, value)
	}
	return clean, dropped
}
