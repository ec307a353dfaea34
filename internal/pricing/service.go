package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/safar/storefront-api/internal/database"
	"github.com/safar/storefront-api/internal/models"
	"github.com/safar/storefront-api/internal/store"
	"github.com/shopspring/decimal"
)

var ErrInvalidMarkup = errors.New("markup must be between -100 and 1000 percent")

// Service owns the markup rules and keeps products.price consistent with them. Order item
// snapshots are never touched.
type Service struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewService(db *sql.DB, log zerolog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With().Str("component", "pricing").Logger(),
	}
}

func (s *Service) ListRules(ctx context.Context) ([]models.PricingRule, error) {
	return store.ListActivePricingRules(ctx, s.db)
}

// SetGlobalMarkup replaces the global rule and reprices every product. It returns the rule and
// the number of products whose price changed.
func (s *Service) SetGlobalMarkup(ctx context.Context, markup decimal.Decimal, priority int) (*models.PricingRule, int, error) {
	return s.setRule(ctx, models.PricingScopeGlobal, nil, markup, priority)
}

// SetCategoryMarkup replaces the category's rule and reprices the products in it.
func (s *Service) SetCategoryMarkup(ctx context.Context, categoryID int64, markup decimal.Decimal, priority int) (*models.PricingRule, int, error) {
	return s.setRule(ctx, models.PricingScopeCategory, &categoryID, markup, priority)
}

// DeleteCategoryRule deactivates the category's rule; its products fall back to the global rule.
func (s *Service) DeleteCategoryRule(ctx context.Context, categoryID int64) (int, error) {
	var repriced int

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := store.DeactivateCategoryRule(ctx, tx, categoryID); err != nil {
			return err
		}

		n, err := Reprice(ctx, tx, &categoryID)
		if err != nil {
			return err
		}
		repriced = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().Int64("category_id", categoryID).Int("repriced", repriced).Msg("category markup removed")
	return repriced, nil
}

func (s *Service) setRule(ctx context.Context, scope models.PricingScope, categoryID *int64, markup decimal.Decimal, priority int) (*models.PricingRule, int, error) {
	if markup.LessThanOrEqual(decimal.NewFromInt(-100)) || markup.GreaterThan(decimal.NewFromInt(1000)) {
		return nil, 0, ErrInvalidMarkup
	}

	var (
		rule     *models.PricingRule
		repriced int
	)

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		rule, err = store.SetActivePricingRule(ctx, tx, scope, categoryID, markup.Round(2), priority)
		if err != nil {
			return err
		}

		repriced, err = Reprice(ctx, tx, categoryID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	s.log.Info().
		Str("scope", string(scope)).
		Str("markup", rule.MarkupValue.String()).
		Int("repriced", repriced).
		Msg("markup rule set")

	return rule, repriced, nil
}

// Reprice recomputes the sell price of every product in categoryID (all products when nil)
// from the currently active rules. It returns how many prices changed.
func Reprice(ctx context.Context, q store.Querier, categoryID *int64) (int, error) {
	rules, err := store.ListActivePricingRules(ctx, q)
	if err != nil {
		return 0, err
	}

	products, err := store.ListProductsByCategory(ctx, q, categoryID)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, p := range products {
		price := Resolve(p.BasePrice, p.CategoryID, rules)
		if price.Equal(p.Price) {
			continue
		}
		if err := store.UpdateProductPrice(ctx, q, p.ID, price); err != nil {
			return changed, fmt.Errorf("reprice product %d: %w", p.ID, err)
		}
		changed++
	}

	return changed, nil
}
