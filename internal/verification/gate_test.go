package verification

import (
	"strings"
	"testing"
)

var stored = Identity{LastName: "Smith", DateOfBirth: "1980-05-01"}

func TestEvaluateConfirmsOnMatch(t *testing.T) {
	provided := Identity{LastName: "smith", DateOfBirth: "May 1 1980"}
	outcome := Evaluate(provided, stored, 0, nil)

	if outcome.Status != StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", outcome.Status)
	}
	if outcome.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", outcome.Attempts)
	}
}

func TestEvaluateThirdAttemptSucceeds(t *testing.T) {
	wrong := Identity{LastName: "Smith", DateOfBirth: "06/02/1981"}

	first := Evaluate(wrong, stored, 0, nil)
	if first.Status != StatusUnconfirmed || first.Attempts != 1 {
		t.Fatalf("first attempt: %+v", first)
	}
	if !strings.Contains(first.Message, "2 attempts remaining") {
		t.Errorf("first failure should say 2 attempts remain: %q", first.Message)
	}

	second := Evaluate(wrong, stored, first.Attempts, nil)
	if second.Status != StatusUnconfirmed || second.Attempts != 2 {
		t.Fatalf("second attempt: %+v", second)
	}
	if !strings.Contains(second.Message, "1 attempt remaining") {
		t.Errorf("second failure should say 1 attempt remains: %q", second.Message)
	}

	right := Identity{LastName: "Smith", DateOfBirth: "05/01/1980"}
	third := Evaluate(right, stored, second.Attempts, nil)
	if third.Status != StatusConfirmed {
		t.Errorf("correct third attempt should confirm, got %+v", third)
	}
}

func TestEvaluateLocksAfterBudget(t *testing.T) {
	wrong := Identity{LastName: "Jones", DateOfBirth: "01/01/1990"}

	var attempts int
	var last Outcome
	for i := 0; i < MaxAttempts; i++ {
		last = Evaluate(wrong, stored, attempts, nil)
		attempts = last.Attempts
	}
	if last.Status != StatusLocked {
		t.Fatalf("status after %d failures = %s, want locked", MaxAttempts, last.Status)
	}
	if last.Message != LockoutMessage {
		t.Errorf("lockout message = %q", last.Message)
	}

	// A locked session never compares again, even with correct data.
	correct := Identity{LastName: "Smith", DateOfBirth: "1980-05-01"}
	rejected := Evaluate(correct, stored, attempts, nil)
	if rejected.Status != StatusLocked {
		t.Errorf("post-lock attempt status = %s, want locked", rejected.Status)
	}
	if rejected.Attempts != attempts {
		t.Errorf("post-lock attempt must not advance the counter: %d", rejected.Attempts)
	}
}

func TestMatchNameContainment(t *testing.T) {
	hyphenated := Identity{LastName: "Smith-Jones", DateOfBirth: "1980-05-01"}
	if ok, _ := Match(Identity{LastName: "smith", DateOfBirth: "05/01/1980"}, hyphenated); !ok {
		t.Error("partial hyphenated name should match")
	}
	if ok, reason := Match(Identity{LastName: "Brown", DateOfBirth: "05/01/1980"}, stored); ok || reason == "" {
		t.Error("unrelated name must not match")
	}
	if ok, _ := Match(Identity{LastName: "", DateOfBirth: "05/01/1980"}, stored); ok {
		t.Error("missing name must not match")
	}
}

func TestMatchDateExactness(t *testing.T) {
	if ok, _ := Match(Identity{LastName: "Smith", DateOfBirth: "05/02/1980"}, stored); ok {
		t.Error("off-by-one-day date must not match")
	}
	if ok, _ := Match(Identity{LastName: "Smith", DateOfBirth: "gibberish"}, stored); ok {
		t.Error("unparseable date must not match")
	}
}

func TestNormalizeDateLayouts(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"05/01/1980", "1980-05-01"},
		{"5/1/80", "1980-05-01"},
		{"1/2/05", "2005-01-02"},
		{"May 1, 1980", "1980-05-01"},
		{"may 1 1980", "1980-05-01"},
		{"1 May 1980", "1980-05-01"},
		{"1980-05-01", "1980-05-01"},
		{"I was born on 12-25-1975.", "1975-12-25"},
	}
	for _, tc := range cases {
		got, err := NormalizeDate(tc.in)
		if err != nil {
			t.Errorf("NormalizeDate(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeDateRejectsImplausible(t *testing.T) {
	for _, in := range []string{"02/30/1980", "05/01/1850", "hello there", "13/45/9999"} {
		if got, err := NormalizeDate(in); err == nil {
			t.Errorf("NormalizeDate(%q) = %q, want error", in, got)
		}
	}
}

func TestParseLastName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My last name is Smith", "Smith"},
		{"surname is o'brien", "O'brien"},
		{"Smith", "Smith"},
		{"Smith, May 1 1980", "Smith"},
		{"it's Garcia", "Garcia"},
		{"x", ""},
	}
	for _, tc := range cases {
		if got := ParseLastName(tc.in); got != tc.want {
			t.Errorf("ParseLastName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
