// Package extraction defines the boundary to the language-model layer that
// turns free-text patient messages into structured data. The engine treats
// extractors as untrusted: outputs are sanitized against the catalog and an
// extractor error never fails a conversation turn.
package extraction

import (
	"context"
	"errors"
	"time"

	"github.com/poundofcure/go-intake/internal/catalog"
	"github.com/poundofcure/go-intake/internal/intake"
)

// ErrExtraction is the sentinel wrapped by extractor failures, so callers
// can route any of them into conversational error recovery.
var ErrExtraction = errors.New("extraction failed")

// Message is one transcript entry.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Identity is what an extractor found in a verification-phase message.
// Empty fields mean nothing was found, not a mismatch.
type Identity struct {
	LastName    string
	DateOfBirth string
}

// Request carries everything an extractor may condition on for one turn.
type Request struct {
	Section catalog.Section
	// Schema is the section's field inventory, given to the extractor so it
	// emits catalog-shaped paths.
	Schema []catalog.Field
	// Existing is the record so far, for pronoun and correction resolution.
	Existing intake.Record
	// History is a bounded window of recent transcript messages.
	History []Message
	// Utterance is the patient's current message.
	Utterance string
	// TargetPaths are the fields the previous assistant turn asked about.
	TargetPaths []string
}

// Result is the structured output of a field extraction.
type Result struct {
	// Fields holds extracted values keyed by structure matching the section
	// record. Paths outside the catalog are dropped downstream.
	Fields intake.Record
}

// Extractor converts patient messages into structured data.
type Extractor interface {
	// ExtractIdentity pulls a last name and date of birth from a
	// verification-phase message.
	ExtractIdentity(ctx context.Context, utterance string, history []Message) (Identity, error)
	// ExtractFields pulls section data from an intake-phase message.
	ExtractFields(ctx context.Context, req Request) (Result, error)
}
