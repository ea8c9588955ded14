package intake

import (
	"reflect"
	"testing"

	"github.com/poundofcure/go-intake/internal/catalog"
)

func TestMergeScalarsAndObjects(t *testing.T) {
	existing := Record{
		"email": "old@b.com",
		"phone": map[string]any{"mobile": "5551234567"},
	}
	incoming := Record{
		"email": "new@b.com",
		"phone": map[string]any{"home": "5559876543"},
	}

	merged := Merge(existing, incoming)

	if v, _ := merged.Get("email"); v != "new@b.com" {
		t.Errorf("scalar should be replaced, got %v", v)
	}
	if v, _ := merged.Get("phone.mobile"); v != "5551234567" {
		t.Errorf("prior nested value should survive, got %v", v)
	}
	if v, _ := merged.Get("phone.home"); v != "5559876543" {
		t.Errorf("new nested value should be merged, got %v", v)
	}
	if v, _ := existing.Get("email"); v != "old@b.com" {
		t.Error("merge must not mutate its inputs")
	}
}

func TestMergeListReplacement(t *testing.T) {
	existing := Record{"currentMedications": []any{"A", "B"}}
	incoming := Record{"currentMedications": []any{"X"}}

	merged := Merge(existing, incoming)

	v, _ := merged.Get("currentMedications")
	list, ok := v.([]any)
	if !ok || len(list) != 1 || list[0] != "X" {
		t.Errorf("incoming list must replace wholesale, got %v", v)
	}
}

func TestMergeNilIncomingIgnored(t *testing.T) {
	existing := Record{"email": "a@b.com"}
	merged := Merge(existing, Record{"email": nil})
	if v, _ := merged.Get("email"); v != "a@b.com" {
		t.Errorf("nil incoming value should not clobber, got %v", v)
	}
}

func TestMergeDisjointSetsAssociative(t *testing.T) {
	base := Record{}
	stepwise := Merge(Merge(base, Record{"a": 1}), Record{"b": 2})
	oneShot := Merge(base, Record{"a": 1, "b": 2})

	if !reflect.DeepEqual(stepwise, oneShot) {
		t.Errorf("stepwise %v != one-shot %v", stepwise, oneShot)
	}
}

func TestApplyExtractionFillsAnyKnownPath(t *testing.T) {
	record := make(Record)
	tracking := NewTracking(catalog.SectionDemographics, record, nil, nil)

	// Asked for phone, patient volunteered email too.
	extracted := Record{
		"email": "a@b.com",
		"phone": map[string]any{"mobile": "5551234567"},
	}
	outcome := ApplyExtraction(catalog.SectionDemographics, record, extracted, tracking, []string{"phone.mobile"}, nil)

	if tracking.Unasked("email") {
		t.Error("volunteered email should be removed from unasked set")
	}
	if tracking.Unasked("phone.mobile") {
		t.Error("answered target should be removed from unasked set")
	}
	if v, _ := outcome.Record.Get("email"); v != "a@b.com" {
		t.Errorf("record missing volunteered value, got %v", v)
	}
	if v, _ := outcome.Record.Get("phone.mobile"); v != "5551234567" {
		t.Errorf("record missing targeted value, got %v", v)
	}
}

func TestApplyExtractionDropsUnknownPaths(t *testing.T) {
	record := make(Record)
	tracking := NewTracking(catalog.SectionDemographics, record, nil, nil)

	extracted := Record{
		"phone": map[string]any{"fax": "5550000000"},
		"email": "a@b.com",
	}
	outcome := ApplyExtraction(catalog.SectionDemographics, record, extracted, tracking, nil, nil)

	if _, ok := outcome.Record.Get("phone.fax"); ok {
		t.Error("unknown path must not reach the record")
	}
	if len(outcome.Dropped) != 1 || outcome.Dropped[0] != "phone.fax" {
		t.Errorf("expected phone.fax dropped, got %v", outcome.Dropped)
	}
	if v, _ := outcome.Record.Get("email"); v != "a@b.com" {
		t.Error("known sibling path should still merge")
	}
}

func TestApplyExtractionBoundedReask(t *testing.T) {
	record := make(Record)
	tracking := NewTracking(catalog.SectionMedicalHistory, record, nil, nil)
	target := []string{"socialHistory.smokingSummary"}

	// The first MaxReasks+1 empty turns keep the path eligible, then the
	// sentinel closes it out.
	var outcome MergeOutcome
	for i := 0; i <= MaxReasks; i++ {
		outcome = ApplyExtraction(catalog.SectionMedicalHistory, record, Record{}, tracking, target, nil)
		record = outcome.Record
		if i < MaxReasks && !tracking.Unasked(target[0]) {
			t.Fatalf("path closed too early on turn %d", i+1)
		}
	}

	if tracking.Unasked(target[0]) {
		t.Error("path should be closed after exhausting the re-ask budget")
	}
	if v, _ := record.Get(target[0]); v != Declined {
		t.Errorf("expected declined sentinel, got %v", v)
	}
	if len(outcome.Declined) != 1 {
		t.Errorf("expected one declined path, got %v", outcome.Declined)
	}
	if !catalog.HasData(record, target[0]) {
		t.Error("sentinel must count as data so the field is never re-asked")
	}
}
