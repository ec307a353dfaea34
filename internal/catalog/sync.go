// Package catalog imports the vendor's stock list into the product table.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/safar/storefront-api/internal/metrics"
	"github.com/safar/storefront-api/internal/models"
	"github.com/safar/storefront-api/internal/pricing"
	"github.com/safar/storefront-api/internal/store"
	"github.com/safar/storefront-api/internal/vendor"
)

var errMissingArticleID = errors.New("missing article id")

type StockSource interface {
	GetCurrentStock(ctx context.Context) ([]vendor.StockItem, error)
}

type SyncResult struct {
	Total       int      `json:"total"`
	Created     int      `json:"created"`
	Updated     int      `json:"updated"`
	Failed      int      `json:"failed"`
	Unavailable int64    `json:"marked_unavailable"`
	Errors      []string `json:"errors,omitempty"`
}

type Syncer struct {
	db      *sql.DB
	source  StockSource
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewSyncer(db *sql.DB, source StockSource, log zerolog.Logger, m *metrics.Metrics) *Syncer {
	return &Syncer{
		db:      db,
		source:  source,
		log:     log.With().Str("component", "catalog").Logger(),
		metrics: m,
	}
}

// Sync upserts every article in the vendor's stock list, pricing it with the active markup
// rules. Articles that fail are reported and skipped. Once at least one article synced,
// products missing from the feed are marked unavailable.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	items, err := s.source.GetCurrentStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch vendor stock: %w", err)
	}

	rules, err := store.ListActivePricingRules(ctx, s.db)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Total: len(items)}
	categories := map[string]int64{}
	seen := make([]string, 0, len(items))

	for _, item := range items {
		if err := s.syncItem(ctx, item, rules, categories, result); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.ArticleID, err))
			s.metrics.ProductsSynced.WithLabelValues("failed").Inc()
			s.log.Warn().Err(err).Str("article_id", item.ArticleID).Msg("skip article")
			continue
		}
		seen = append(seen, item.ArticleID)
	}

	if len(seen) > 0 {
		n, err := store.MarkMissingUnavailable(ctx, s.db, seen)
		if err != nil {
			return result, err
		}
		result.Unavailable = n
	}

	s.log.Info().
		Int("total", result.Total).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Int64("marked_unavailable", result.Unavailable).
		Msg("product sync finished")

	return result, nil
}

func (s *Syncer) syncItem(ctx context.Context, item vendor.StockItem, rules []models.PricingRule, categories map[string]int64, result *SyncResult) error {
	item.ArticleID = strings.TrimSpace(item.ArticleID)
	if item.ArticleID == "" {
		return errMissingArticleID
	}
	if item.Price.IsNegative() {
		return fmt.Errorf("negative price %s", item.Price)
	}

	params := store.ProductParams{
		VendorArticleID:   item.ArticleID,
		SKU:               strings.TrimSpace(item.SKU),
		Name:              strings.TrimSpace(item.Name),
		Description:       item.Description,
		BasePrice:         item.Price.Round(2),
		AvailableQuantity: max(item.Quantity, 0),
		IsAvailable:       item.Quantity > 0,
	}
	if params.SKU == "" {
		params.SKU = item.ArticleID
	}
	if params.Name == "" {
		params.Name = item.ArticleID
	}

	if name := strings.TrimSpace(item.Category); name != "" {
		id, ok := categories[name]
		if !ok {
			var err error
			if id, err = store.EnsureCategory(ctx, s.db, name); err != nil {
				return err
			}
			categories[name] = id
		}
		params.CategoryID = &id
	}

	params.Price = pricing.Resolve(params.BasePrice, params.CategoryID, rules)

	product, created, err := store.UpsertVendorProduct(ctx, s.db, params)
	if err != nil {
		return err
	}

	// A feed item without a category keeps the stored one, so price from what was stored.
	if price := pricing.Resolve(product.BasePrice, product.CategoryID, rules); !price.Equal(product.Price) {
		if err := store.UpdateProductPrice(ctx, s.db, product.ID, price); err != nil {
			return err
		}
	}

	if created {
		result.Created++
		s.metrics.ProductsSynced.WithLabelValues("created").Inc()
	} else {
		result.Updated++
		s.metrics.ProductsSynced.WithLabelValues("updated").Inc()
	}
	return nil
}
