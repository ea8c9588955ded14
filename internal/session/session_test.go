package session

import (
	"testing"
	"time"

	"github.com/poundofcure/go-intake/internal/catalog"
	"github.com/poundofcure/go-intake/internal/verification"
)

func TestCurrentSectionFollowsCompletionFlags(t *testing.T) {
	s := New("MRN-1001")
	s.VerificationStatus = verification.StatusConfirmed

	sec, done := s.CurrentSection()
	if sec != catalog.SectionDemographics || done {
		t.Fatalf("fresh session section = %s, done = %v", sec, done)
	}

	// Completing sections in order advances the derived section.
	for i, completed := range catalog.Order {
		tr := s.EnsureTracking(completed, nil)
		tr.MarkAsked(tr.UnaskedFields...)
		tr.IsComplete = tr.Complete()

		sec, done = s.CurrentSection()
		if i < len(catalog.Order)-1 {
			if done || sec != catalog.Order[i+1] {
				t.Errorf("after completing %s: section = %s, done = %v", completed, sec, done)
			}
		} else if !done {
			t.Error("all sections complete but session reports an active section")
		}
	}
}

func TestCurrentSectionNeverSkipsIncomplete(t *testing.T) {
	s := New("MRN-1001")

	// Complete a later section first; the earlier one still wins.
	tr := s.EnsureTracking(catalog.SectionWeightHistory, nil)
	tr.MarkAsked(tr.UnaskedFields...)
	tr.IsComplete = true

	if sec, _ := s.CurrentSection(); sec != catalog.SectionDemographics {
		t.Errorf("section = %s, want demographics", sec)
	}
}

func TestEnsureTrackingIsLazyAndStable(t *testing.T) {
	s := New("MRN-1001")
	s.Record(catalog.SectionDemographics).Set("email", "a@b.com")

	tr := s.EnsureTracking(catalog.SectionDemographics, []string{"firstName"})
	if tr.Unasked("email") {
		t.Error("populated path should not be unasked")
	}
	if tr.Unasked("firstName") {
		t.Error("pre-populated path should not be unasked")
	}

	// Second call must not rebuild and lose progress.
	tr.MarkAsked("lastName")
	again := s.EnsureTracking(catalog.SectionDemographics, nil)
	if again != tr {
		t.Fatal("EnsureTracking rebuilt an existing tracker")
	}
	if again.Unasked("lastName") {
		t.Error("tracker progress lost across EnsureTracking calls")
	}
}

func TestMarkCompletedExactlyOnce(t *testing.T) {
	s := New("MRN-1001")
	if !s.MarkCompleted() {
		t.Fatal("first completion should report true")
	}
	if s.MarkCompleted() {
		t.Error("second completion must be a no-op")
	}
	if s.CompletedAt == nil {
		t.Error("completion timestamp missing")
	}
}

func TestMemoryStoreEvictsIdle(t *testing.T) {
	store := NewMemoryStore(StoreConfig{IdleTTL: time.Minute, CleanupInterval: time.Hour}, nil)

	fresh := New("MRN-1")
	stale := New("MRN-2")
	stale.UpdatedAt = time.Now().UTC().Add(-2 * time.Minute)
	store.Put(fresh)
	store.Put(stale)

	store.evictIdle()

	if _, ok := store.Get(stale.ID); ok {
		t.Error("stale session should be evicted")
	}
	if _, ok := store.Get(fresh.ID); !ok {
		t.Error("fresh session should survive")
	}
}
