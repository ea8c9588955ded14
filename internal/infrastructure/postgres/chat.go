package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/extraction"
)

// ChatHistory persists the conversation transcript, one row per message.
type ChatHistory struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewChatHistory creates a transcript store
func NewChatHistory(pool *pgxpool.Pool, logger *zap.Logger) *ChatHistory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHistory{pool: pool, logger: logger}
}

// AddMessages appends messages to a session's transcript in one batch.
func (h *ChatHistory) AddMessages(ctx context.Context, sessionID string, msgs []extraction.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO chat_messages (session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, msg := range msgs {
		batch.Queue(query, sessionID, msg.Role, msg.Content, msg.At)
	}

	results := h.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range msgs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("append transcript: %w", err)
		}
	}
	return nil
}

// RecentMessages returns the newest messages in chronological order.
func (h *ChatHistory) RecentMessages(ctx context.Context, sessionID string, limit int) ([]extraction.Message, error) {
	query := `
		SELECT role, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := h.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	var newestFirst []extraction.Message
	for rows.Next() {
		var msg extraction.Message
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.At); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into conversational order.
	out := make([]extraction.Message, len(newestFirst))
	for i, msg := range newestFirst {
		out[len(newestFirst)-1-i] = msg
	}
	return out, nil
}

// CountMessages returns the transcript length for a session.
func (h *ChatHistory) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := h.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}
