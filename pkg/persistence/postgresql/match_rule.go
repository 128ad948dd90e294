package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/docflow/pkg/models"
)

// MatchRuleRepository handles the match_rules table.
type MatchRuleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMatchRuleRepository creates a new match rule repository.
func NewMatchRuleRepository(db *sql.DB, logger *slog.Logger) *MatchRuleRepository {
	return &MatchRuleRepository{db: db, logger: logger}
}

func (r *MatchRuleRepository) MatchRules(ctx context.Context) ([]*models.MatchRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, target_id, algorithm, pattern, case_insensitive
		FROM match_rules
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query match rules: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	rules := make([]*models.MatchRule, 0)

	for rows.Next() {
		var rule models.MatchRule

		err := rows.Scan(&rule.ID, &rule.Kind, &rule.TargetID, &rule.Algorithm, &rule.Pattern, &rule.CaseInsensitive)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match rule: %w", err)
		}

		rules = append(rules, &rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rules: %w", err)
	}

	return rules, nil
}

func (r *MatchRuleRepository) SaveMatchRule(ctx context.Context, rule *models.MatchRule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO match_rules (id, kind, target_id, algorithm, pattern, case_insensitive)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			target_id = EXCLUDED.target_id,
			algorithm = EXCLUDED.algorithm,
			pattern = EXCLUDED.pattern,
			case_insensitive = EXCLUDED.case_insensitive
	`, rule.ID, rule.Kind, rule.TargetID, rule.Algorithm, rule.Pattern, rule.CaseInsensitive)
	if err != nil {
		return fmt.Errorf("failed to save match rule %s: %w", rule.ID, err)
	}

	return nil
}
