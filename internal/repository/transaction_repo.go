package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/syuchan1005/CardNotifier/contracts/db"
)

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Insert appends a transaction; at most one per (user_id, message_id).
func (r *TransactionRepository) Insert(ctx context.Context, t *db.Transaction) (int64, error) {
	query := `
        INSERT INTO transactions
            (user_id, message_id, is_refund, amount, amount_currency, card_name, destination, purchased_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (user_id, message_id) DO NOTHING
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query,
		t.UserID, t.MessageID, t.IsRefund, t.Amount, t.Currency,
		t.CardName, t.Destination, t.PurchasedAt, t.CreatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	t.ID = id
	return id, nil
}
