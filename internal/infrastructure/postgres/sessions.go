package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/catalog"
	"github.com/poundofcure/go-intake/internal/intake"
	"github.com/poundofcure/go-intake/internal/session"
	"github.com/poundofcure/go-intake/internal/verification"
)

// Repository persists intake sessions. Section records and trackers live as
// jsonb columns so a turn updates only its own section's key instead of
// rewriting the whole document.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a session repository
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// CreateSession inserts a new session row.
func (r *Repository) CreateSession(ctx context.Context, s *session.Session) error {
	sections, err := json.Marshal(s.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	tracking, err := json.Marshal(s.Tracking)
	if err != nil {
		return fmt.Errorf("encode tracking: %w", err)
	}

	query := `
		INSERT INTO intake_sessions (
			id, patient_mrn, ehr_patient_id, patient_first_name,
			stored_last_name, stored_dob,
			verification_status, verification_attempts,
			sections, tracking, completed, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.pool.Exec(ctx, query,
		s.ID, s.PatientMRN, s.EHRPatientID, s.PatientFirstName,
		s.StoredLastName, s.StoredDOB,
		s.VerificationStatus, s.VerificationAttempts,
		sections, tracking, s.Completed, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// LoadSession reads a session by ID. Returns session.ErrNotFound for
// unknown IDs.
func (r *Repository) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	query := `
		SELECT id, patient_mrn, ehr_patient_id, patient_first_name,
		       stored_last_name, stored_dob,
		       verification_status, verification_attempts,
		       sections, tracking, completed, completed_at, created_at, updated_at
		FROM intake_sessions
		WHERE id = $1
	`

	s := &session.Session{}
	var sections, tracking []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.PatientMRN, &s.EHRPatientID, &s.PatientFirstName,
		&s.StoredLastName, &s.StoredDOB,
		&s.VerificationStatus, &s.VerificationAttempts,
		&sections, &tracking, &s.Completed, &s.CompletedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	if err := json.Unmarshal(sections, &s.Sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	if err := json.Unmarshal(tracking, &s.Tracking); err != nil {
		return nil, fmt.Errorf("decode tracking: %w", err)
	}
	if s.Sections == nil {
		s.Sections = make(map[catalog.Section]intake.Record)
	}
	if s.Tracking == nil {
		s.Tracking = make(map[catalog.Section]*intake.Tracking)
	}
	return s, nil
}

// SaveSection writes one section's record and tracker without touching the
// other sections.
func (r *Repository) SaveSection(ctx context.Context, sessionID string, sec catalog.Section, record intake.Record, tracking *intake.Tracking) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	trackingJSON, err := json.Marshal(tracking)
	if err != nil {
		return fmt.Errorf("encode tracking: %w", err)
	}

	query := `
		UPDATE intake_sessions
		SET sections = jsonb_set(COALESCE(sections, '{}'::jsonb), $2, $3::jsonb, true),
		    tracking = jsonb_set(COALESCE(tracking, '{}'::jsonb), $2, $4::jsonb, true),
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, sessionID, []string{string(sec)}, recordJSON, trackingJSON)
	if err != nil {
		return fmt.Errorf("save section %s: %w", sec, err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// SetVerificationState records the gate status and attempt count.
func (r *Repository) SetVerificationState(ctx context.Context, sessionID string, status verification.Status, attempts int) error {
	query := `
		UPDATE intake_sessions
		SET verification_status = $2, verification_attempts = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, sessionID, status, attempts)
	if err != nil {
		return fmt.Errorf("set verification state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// ConfirmSession marks the gate passed and stores the resolved chart ID.
func (r *Repository) ConfirmSession(ctx context.Context, sessionID, ehrPatientID string) error {
	query := `
		UPDATE intake_sessions
		SET verification_status = $2, ehr_patient_id = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, sessionID, verification.StatusConfirmed, ehrPatientID)
	if err != nil {
		return fmt.Errorf("confirm session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// MarkSessionComplete records the terminal completion timestamp. The WHERE
// clause keeps it idempotent under replays.
func (r *Repository) MarkSessionComplete(ctx context.Context, sessionID string, at time.Time) error {
	query := `
		UPDATE intake_sessions
		SET completed = TRUE, completed_at = $2, updated_at = NOW()
		WHERE id = $1 AND completed = FALSE
	`
	if _, err := r.pool.Exec(ctx, query, sessionID, at); err != nil {
		return fmt.Errorf("mark session complete: %w", err)
	}
	return nil
}

// SessionSummary is the listing row for operational tooling.
type SessionSummary struct {
	ID                 string              `json:"id"`
	PatientMRN         string              `json:"patient_mrn"`
	VerificationStatus verification.Status `json:"verification_status"`
	Completed          bool                `json:"completed"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// ListRecentSessions returns the newest sessions, for the debug surface.
func (r *Repository) ListRecentSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	query := `
		SELECT id, patient_mrn, verification_status, completed, created_at, updated_at
		FROM intake_sessions
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.ID, &s.PatientMRN, &s.VerificationStatus, &s.Completed, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
