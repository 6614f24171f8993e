package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository stores conversation turns. Messages are append-only and
// are never mutated or deleted in normal operation.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, error)
	// ListMessages returns the user's turns ordered by creation time ascending,
	// optionally scoped to one conversation thread.
	ListMessages(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error)
	// ListRecent returns the latest turns of a thread in chronological order,
	// for use as AI completion history.
	ListRecent(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error)
}

type messageRepo struct {
	pool *pgxpool.Pool
}

// NewMessageRepo creates a new MessageRepository.
func NewMessageRepo(pool *pgxpool.Pool) MessageRepository {
	return &messageRepo{pool: pool}
}

const messageColumns = `id, user_id, chat_id, role, text, attachments, created_at`

func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	var attachmentsJSON []byte
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.ChatID,
		&m.Role,
		&m.Text,
		&attachmentsJSON,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &m.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshaling attachments for message %s: %w", m.ID, err)
		}
	}
	return &m, nil
}

func (r *messageRepo) CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	attachmentsJSON, err := json.Marshal(msg.Attachments)
	if err != nil {
		return nil, fmt.Errorf("marshaling attachments: %w", err)
	}

	q := fmt.Sprintf(`
		INSERT INTO messages (user_id, chat_id, role, text, attachments)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		RETURNING %s
	`, messageColumns)
	created, err := scanMessage(r.pool.QueryRow(ctx, q, msg.UserID, msg.ChatID, msg.Role, msg.Text, attachmentsJSON))
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	return created, nil
}

func (r *messageRepo) ListMessages(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error) {
	q := fmt.Sprintf(`
		SELECT %s
		FROM messages
		WHERE user_id = $1 AND ($2 = '' OR chat_id = $2)
		ORDER BY created_at ASC
		LIMIT $3
	`, messageColumns)

	rows, err := r.pool.Query(ctx, q, userID, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages for user %s: %w", userID, err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (r *messageRepo) ListRecent(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error) {
	// Fetch the latest messages (ordered DESC, then reverse to get oldest first)
	q := fmt.Sprintf(`
		SELECT %s
		FROM messages
		WHERE user_id = $1 AND ($2 = '' OR chat_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, messageColumns)

	rows, err := r.pool.Query(ctx, q, userID, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages for user %s: %w", userID, err)
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func collectMessages(rows pgx.Rows) ([]model.Message, error) {
	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}
