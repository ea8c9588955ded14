package catalog

import "testing"

func TestAllLeafPathsUnknownSection(t *testing.T) {
	if paths := AllLeafPaths(Section("insurance")); paths != nil {
		t.Errorf("unknown section should yield no paths, got %v", paths)
	}
	if groups := QuestionGroups(Section("insurance")); groups != nil {
		t.Errorf("unknown section should yield no groups, got %v", groups)
	}
}

func TestQuestionGroupsAreCatalogPaths(t *testing.T) {
	for _, section := range Order {
		known := make(map[string]bool)
		for _, p := range AllLeafPaths(section) {
			known[p] = true
		}
		for _, group := range QuestionGroups(section) {
			if len(group) == 0 || len(group) > 4 {
				t.Errorf("%s: group size %d out of range: %v", section, len(group), group)
			}
			for _, p := range group {
				if !known[p] {
					t.Errorf("%s: group references undeclared path %q", section, p)
				}
			}
		}
	}
}

func TestGroupsDoNotRepeatPaths(t *testing.T) {
	for _, section := range Order {
		seen := make(map[string]bool)
		for _, group := range QuestionGroups(section) {
			for _, p := range group {
				if seen[p] {
					t.Errorf("%s: path %q appears in more than one group", section, p)
				}
				seen[p] = true
			}
		}
	}
}

func TestKnownPath(t *testing.T) {
	if !KnownPath(SectionDemographics, "phone.mobile") {
		t.Error("phone.mobile should be a known demographics path")
	}
	if KnownPath(SectionDemographics, "phone.fax") {
		t.Error("phone.fax should not be known")
	}
	if KnownPath(Section("bogus"), "phone.mobile") {
		t.Error("no path is known for an unknown section")
	}
}

func TestPromptLookup(t *testing.T) {
	if p := Prompt(SectionDemographics, "email"); p == "" {
		t.Error("expected a prompt for email")
	}
	if p := Prompt(SectionDemographics, "nope"); p != "" {
		t.Errorf("expected empty prompt for unknown path, got %q", p)
	}
}
