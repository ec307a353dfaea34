package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/storefront-api/internal/database"
	"github.com/safar/storefront-api/internal/models"
	"github.com/shopspring/decimal"
)

const pricingRuleColumns = `id, scope, entity_id, markup_value, priority, is_active, created_at, updated_at`

func scanPricingRule(row rowScanner) (*models.PricingRule, error) {
	rule := &models.PricingRule{}
	var entityID sql.NullInt64

	err := row.Scan(
		&rule.ID,
		&rule.Scope,
		&entityID,
		&rule.MarkupValue,
		&rule.Priority,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.EntityID = int64Ptr(entityID)
	return rule, nil
}

// ListActivePricingRules returns active rules ordered global first, then by category, highest
// priority first within a scope.
func ListActivePricingRules(ctx context.Context, q Querier) ([]models.PricingRule, error) {
	query := `
		SELECT ` + pricingRuleColumns + `
		FROM pricing_rules
		WHERE is_active
		ORDER BY scope DESC, entity_id NULLS FIRST, priority DESC, id`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pricing rules: %w", err)
	}
	defer rows.Close()

	rules := []models.PricingRule{}
	for rows.Next() {
		rule, err := scanPricingRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pricing rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rules, nil
}

// SetActivePricingRule updates the active rule for (scope, entityID) in place, inserting it
// when none exists. The partial unique indexes keep at most one active rule per target.
func SetActivePricingRule(ctx context.Context, q Querier, scope models.PricingScope, entityID *int64, markup decimal.Decimal, priority int) (*models.PricingRule, error) {
	update := `
		UPDATE pricing_rules
		SET markup_value = $1, priority = $2, updated_at = NOW()
		WHERE scope = $3 AND entity_id IS NOT DISTINCT FROM $4 AND is_active
		RETURNING ` + pricingRuleColumns

	rule, err := scanPricingRule(q.QueryRowContext(ctx, update, markup, priority, scope, nullableInt64(entityID)))
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update pricing rule: %w", err)
	}

	insert := `
		INSERT INTO pricing_rules (scope, entity_id, markup_value, priority, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		RETURNING ` + pricingRuleColumns

	rule, err = scanPricingRule(q.QueryRowContext(ctx, insert, scope, nullableInt64(entityID), markup, priority))
	if err != nil {
		return nil, fmt.Errorf("insert pricing rule: %w", err)
	}

	return rule, nil
}

func DeactivateCategoryRule(ctx context.Context, q Querier, categoryID int64) error {
	result, err := q.ExecContext(ctx,
		`UPDATE pricing_rules
		 SET is_active = FALSE, updated_at = NOW()
		 WHERE scope = $1 AND entity_id = $2 AND is_active`,
		models.PricingScopeCategory, categoryID)
	if err != nil {
		return fmt.Errorf("deactivate pricing rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrPricingRuleNotFound
	}

	return nil
}
