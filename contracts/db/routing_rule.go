package db

// RoutingRule maps an alias address to its owner and the remote rule that forwards it.
type RoutingRule struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	EmailAddress string `json:"email_address"`
	RuleID       string `json:"rule_id"`
}
