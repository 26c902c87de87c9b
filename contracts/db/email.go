package db

import "time"

// Email 表示 emails 表的一行，7 天后由保留任务清理
type Email struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Date      time.Time `json:"date"`
	MessageID string    `json:"message_id"`
	Subject   string    `json:"subject"`
	BodyText  string    `json:"body_text"`
}
