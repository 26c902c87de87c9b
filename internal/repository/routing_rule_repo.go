package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/syuchan1005/CardNotifier/contracts/db"
)

type RoutingRuleRepository struct {
	db DBTX
}

func NewRoutingRuleRepository(db DBTX) *RoutingRuleRepository {
	return &RoutingRuleRepository{db: db}
}

const routingRuleColumns = `id, user_id, email_address, rule_id`

func scanRoutingRule(row pgx.Row) (*db.RoutingRule, error) {
	var rr db.RoutingRule
	if err := row.Scan(&rr.ID, &rr.UserID, &rr.EmailAddress, &rr.RuleID); err != nil {
		return nil, err
	}
	return &rr, nil
}

// FindByAddress looks up the rule for an alias, case-insensitively.
func (r *RoutingRuleRepository) FindByAddress(ctx context.Context, address string) (*db.RoutingRule, error) {
	query := `SELECT ` + routingRuleColumns + ` FROM email_routing_rules WHERE email_address = $1 LIMIT 1`
	rr, err := scanRoutingRule(r.db.QueryRow(ctx, query, strings.ToLower(address)))
	if err != nil {
		return nil, notFound(err)
	}
	return rr, nil
}

// FindByID returns the rule only when it belongs to userID.
func (r *RoutingRuleRepository) FindByID(ctx context.Context, userID, id int64) (*db.RoutingRule, error) {
	query := `SELECT ` + routingRuleColumns + ` FROM email_routing_rules WHERE id = $1 AND user_id = $2`
	rr, err := scanRoutingRule(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return rr, nil
}

func (r *RoutingRuleRepository) ListByUser(ctx context.Context, userID int64) ([]db.RoutingRule, error) {
	query := `SELECT ` + routingRuleColumns + ` FROM email_routing_rules WHERE user_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list routing rules: %w", err)
	}
	defer rows.Close()

	rules := []db.RoutingRule{}
	for rows.Next() {
		rr, err := scanRoutingRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routing rule: %w", err)
		}
		rules = append(rules, *rr)
	}
	return rules, rows.Err()
}

// Insert stores the alias lower-cased; email_address is unique.
func (r *RoutingRuleRepository) Insert(ctx context.Context, rr *db.RoutingRule) (int64, error) {
	query := `
        INSERT INTO email_routing_rules (user_id, email_address, rule_id)
        VALUES ($1, $2, $3)
        RETURNING id
    `
	rr.EmailAddress = strings.ToLower(rr.EmailAddress)
	var id int64
	if err := r.db.QueryRow(ctx, query, rr.UserID, rr.EmailAddress, rr.RuleID).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert routing rule: %w", err)
	}
	rr.ID = id
	return id, nil
}

func (r *RoutingRuleRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM email_routing_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete routing rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
