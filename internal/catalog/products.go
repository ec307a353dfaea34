package catalog

import (
	"context"
	"database/sql"

	"github.com/safar/storefront-api/internal/models"
	"github.com/safar/storefront-api/internal/store"
)

// Catalog is the storefront's read side of the product table.
type Catalog struct {
	db *sql.DB
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) ListProducts(ctx context.Context, page, pageSize int, onlyAvailable bool) (*store.OffsetPage, error) {
	return store.ListProducts(ctx, c.db, page, pageSize, onlyAvailable)
}

func (c *Catalog) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return store.GetProduct(ctx, c.db, id)
}
