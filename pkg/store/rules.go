package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/meridian-labs/anchorage/pkg/rules"
)

// RuleStore persists rule definitions. ActiveRules orders by creation time
// then rule id so matcher output is stable across replicas.
type RuleStore struct {
	db *sql.DB
}

func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

func (s *RuleStore) Create(ctx context.Context, r rules.Rule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (rule_id, name, rule_type, latitude, longitude, radius_m,
			condition, webhook_url, webhook_secret, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RuleID, r.Name, r.Type, r.Latitude, r.Longitude, r.RadiusM,
		r.Condition, r.WebhookURL, r.WebhookSecret, boolToInt(r.Active), formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (s *RuleStore) ActiveRules(ctx context.Context) ([]rules.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_id, name, rule_type, latitude, longitude, radius_m,
			condition, webhook_url, webhook_secret, active, created_at
		 FROM rules WHERE active = 1
		 ORDER BY created_at, rule_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRules(rows)
}

// Get returns one rule by id, or (nil, nil) if absent.
func (s *RuleStore) Get(ctx context.Context, ruleID string) (*rules.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_id, name, rule_type, latitude, longitude, radius_m,
			condition, webhook_url, webhook_secret, active, created_at
		 FROM rules WHERE rule_id = ?`,
		ruleID,
	)
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out, err := scanRules(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// Delete deactivates a rule; definitions are never hard-deleted so emitted
// events keep resolving their rule id.
func (s *RuleStore) Delete(ctx context.Context, ruleID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE rules SET active = 0 WHERE rule_id = ?`, ruleID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanRules(rows *sql.Rows) ([]rules.Rule, error) {
	var out []rules.Rule
	for rows.Next() {
		var r rules.Rule
		var active int
		var created string
		if err := rows.Scan(&r.RuleID, &r.Name, &r.Type, &r.Latitude, &r.Longitude,
			&r.RadiusM, &r.Condition, &r.WebhookURL, &r.WebhookSecret, &active, &created); err != nil {
			return nil, err
		}
		r.Active = active != 0
		r.CreatedAt = parseTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
