package db

import "time"

// Transaction 表示 transactions 表的一行。写入后不再修改。
type Transaction struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	MessageID   string    `json:"message_id"`
	IsRefund    bool      `json:"is_refund"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"amount_currency"`
	CardName    string    `json:"card_name"`
	Destination string    `json:"destination"`
	PurchasedAt time.Time `json:"purchased_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// SignedAmount returns the amount negated for refunds.
func (t Transaction) SignedAmount() int64 {
	if t.IsRefund {
		return -t.Amount
	}
	return t.Amount
}
