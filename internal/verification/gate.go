// Package verification implements the identity gate that fronts every intake
// conversation: a patient must confirm last name and date of birth against
// the chart before any intake data is collected, within a fixed attempt
// budget.
package verification

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Status is the verification state of a session.
type Status string

const (
	StatusUnconfirmed Status = "unconfirmed"
	StatusConfirmed   Status = "confirmed"
	// StatusLocked is terminal. No comparison is ever performed again for a
	// locked session; the patient is directed to call the office.
	StatusLocked Status = "locked"
)

// MaxAttempts is the total number of verification attempts a session gets.
const MaxAttempts = 3

// ErrLocked is returned when a turn arrives for a session that has already
// exhausted its verification attempts.
var ErrLocked = errors.New("identity verification locked")

// Identity is the pair a patient must confirm.
type Identity struct {
	LastName    string
	DateOfBirth string
}

// Outcome is the result of one verification attempt.
type Outcome struct {
	Status   Status
	Attempts int
	Message  string
}

// Evaluate compares a provided identity against the stored one and advances
// the attempt counter. priorAttempts is the number of failed attempts already
// recorded; once it reaches MaxAttempts the gate is locked and no comparison
// happens.
func Evaluate(provided, stored Identity, priorAttempts int, logger *zap.Logger) Outcome {
	if logger == nil {
		logger = zap.NewNop()
	}

	if priorAttempts >= MaxAttempts {
		return Outcome{Status: StatusLocked, Attempts: priorAttempts, Message: LockoutMessage}
	}

	matched, reason := Match(provided, stored)
	if matched {
		logger.Info("identity verified", zap.Int("attempts", priorAttempts+1))
		return Outcome{
			Status:   StatusConfirmed,
			Attempts: priorAttempts + 1,
			Message:  "Thank you, your identity has been verified. Let's get started with your intake.",
		}
	}

	attempts := priorAttempts + 1
	logger.Warn("identity verification failed",
		zap.Int("attempts", attempts),
		zap.String("reason", reason))

	if attempts >= MaxAttempts {
		return Outcome{Status: StatusLocked, Attempts: attempts, Message: LockoutMessage}
	}
	remaining := MaxAttempts - attempts
	plural := "attempts"
	if remaining == 1 {
		plural = "attempt"
	}
	return Outcome{
		Status:   StatusUnconfirmed,
		Attempts: attempts,
		Message:  fmt.Sprintf("%s. You have %d %s remaining. Could you please provide your last name and date of birth again?", reason, remaining, plural),
	}
}

// Match reports whether the provided identity matches the stored one and, on
// mismatch, a patient-safe reason. Last names compare case-insensitively and
// tolerate containment either way, so "Smith" matches "Smith-Jones". Dates
// compare exactly after canonicalization.
func Match(provided, stored Identity) (bool, string) {
	storedName := strings.ToLower(strings.TrimSpace(stored.LastName))
	providedName := strings.ToLower(strings.TrimSpace(provided.LastName))
	if storedName == "" || providedName == "" {
		return false, "I wasn't able to find a last name in your message"
	}
	nameMatch := providedName == storedName ||
		strings.Contains(storedName, providedName) ||
		strings.Contains(providedName, storedName)
	if !nameMatch {
		return false, "The last name provided does not match our records"
	}

	storedDOB, err := NormalizeDate(stored.DateOfBirth)
	if err != nil {
		return false, "We are unable to verify your date of birth right now"
	}
	providedDOB, err := NormalizeDate(provided.DateOfBirth)
	if err != nil {
		return false, "I wasn't able to read that date of birth. You can use a format like MM/DD/YYYY or spell out the month"
	}
	if providedDOB != storedDOB {
		return false, "The date of birth provided does not match our records"
	}
	return true, ""
}

// LockoutMessage is the terminal response for a locked session.
const LockoutMessage = "I'm sorry, but I wasn't able to verify your identity after multiple attempts. For your security, please contact our office directly to complete your intake."

// Prompt returns the opening verification prompt, escalating in specificity
// with each attempt.
func Prompt(firstName string, attempt int) string {
	switch {
	case attempt <= 1:
		if firstName != "" {
			return fmt.Sprintf("Hi %s! To confirm your identity before we begin, could you please tell me your last name and date of birth?", firstName)
		}
		return "To confirm your identity before we begin, could you please tell me your last name and date of birth?"
	case attempt == 2:
		return "I need to verify both your last name and date of birth. For example, you could say 'My last name is Smith and my date of birth is January 15, 1985'."
	default:
		return "I'm having trouble verifying your identity. Please provide your last name and date of birth clearly. For the date, you can use MM/DD/YYYY or spell out the month."
	}
}

var lastNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`my last name is\s+([a-z\-']+)`),
	regexp.MustCompile(`last name is\s+([a-z\-']+)`),
	regexp.MustCompile(`surname is\s+([a-z\-']+)`),
	regexp.MustCompile(`family name is\s+([a-z\-']+)`),
	regexp.MustCompile(`it's\s+([a-z\-']+)`),
	regexp.MustCompile(`name:\s*([a-z\-']+)`),
	regexp.MustCompile(`^([a-z\-']+)[,.]?\s`),
	regexp.MustCompile(`^([a-z\-']+)$`),
}

// ParseLastName pulls a last name out of free text. Used as a fallback when
// structured extraction yields nothing, so a bare "Smith, May 1 1980" reply
// still verifies.
func ParseLastName(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, pattern := range lastNamePatterns {
		m := pattern.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		name := strings.Trim(m[1], "-'")
		if len(name) < 2 {
			continue
		}
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return ""
}
