package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/syuchan1005/CardNotifier/contracts/db"
)

type EmailRepository struct {
	db DBTX
}

func NewEmailRepository(db DBTX) *EmailRepository {
	return &EmailRepository{db: db}
}

// Insert stores one email record. A second insert for the same
// (user_id, message_id) returns ErrDuplicate.
func (r *EmailRepository) Insert(ctx context.Context, e *db.Email) (int64, error) {
	query := `
        INSERT INTO emails (user_id, "from", "to", date, message_id, subject, body_text)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (user_id, message_id) DO NOTHING
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query,
		e.UserID, e.From, e.To, e.Date, e.MessageID, e.Subject, e.BodyText,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert email: %w", err)
	}
	e.ID = id
	return id, nil
}

// DeleteOlderThan removes every email (any user) dated before threshold.
func (r *EmailRepository) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM emails WHERE date < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete old emails: %w", err)
	}
	return tag.RowsAffected(), nil
}
