package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/storefront-api/internal/database"
	"github.com/safar/storefront-api/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, vendor_article_id, sku, name, description, category_id, base_price, price,
	available_quantity, is_available, created_at, updated_at, version`

type ProductParams struct {
	VendorArticleID   string
	SKU               string
	Name              string
	Description       string
	CategoryID        *int64
	BasePrice         decimal.Decimal
	Price             decimal.Decimal
	AvailableQuantity int
	IsAvailable       bool
}

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{}
	var categoryID sql.NullInt64

	err := row.Scan(
		&product.ID,
		&product.VendorArticleID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&categoryID,
		&product.BasePrice,
		&product.Price,
		&product.AvailableQuantity,
		&product.IsAvailable,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return nil, err
	}

	product.CategoryID = int64Ptr(categoryID)
	return product, nil
}

func CreateProduct(ctx context.Context, q Querier, p ProductParams) (*models.Product, error) {
	query := `
		INSERT INTO products (vendor_article_id, sku, name, description, category_id, base_price, price,
		                      available_quantity, is_available, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	product, err := scanProduct(q.QueryRowContext(ctx, query,
		p.VendorArticleID, p.SKU, p.Name, p.Description, nullableInt64(p.CategoryID),
		p.BasePrice, p.Price, p.AvailableQuantity, p.IsAvailable))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

// UpsertVendorProduct inserts or refreshes a product keyed by its vendor article id.
// created reports whether a new row was inserted.
func UpsertVendorProduct(ctx context.Context, q Querier, p ProductParams) (product *models.Product, created bool, err error) {
	query := `
		INSERT INTO products (vendor_article_id, sku, name, description, category_id, base_price, price,
		                      available_quantity, is_available, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW(), 1)
		ON CONFLICT (vendor_article_id) DO UPDATE
		SET sku = EXCLUDED.sku,
		    name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    category_id = COALESCE(EXCLUDED.category_id, products.category_id),
		    base_price = EXCLUDED.base_price,
		    price = EXCLUDED.price,
		    available_quantity = EXCLUDED.available_quantity,
		    is_available = EXCLUDED.is_available,
		    updated_at = NOW(),
		    version = products.version + 1
		RETURNING ` + productColumns + `, (xmax = 0)`

	product = &models.Product{}
	var categoryID sql.NullInt64
	err = q.QueryRowContext(ctx, query,
		p.VendorArticleID, p.SKU, p.Name, p.Description, nullableInt64(p.CategoryID),
		p.BasePrice, p.Price, p.AvailableQuantity, p.IsAvailable).Scan(
		&product.ID,
		&product.VendorArticleID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&categoryID,
		&product.BasePrice,
		&product.Price,
		&product.AvailableQuantity,
		&product.IsAvailable,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
		&created,
	)
	if err != nil {
		return nil, false, fmt.Errorf("upsert product %s: %w", p.VendorArticleID, err)
	}

	product.CategoryID = int64Ptr(categoryID)
	return product, created, nil
}

func GetProduct(ctx context.Context, q Querier, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// GetProductsByIDs returns the products that exist among ids, keyed by id. Missing ids are
// simply absent from the map.
func GetProductsByIDs(ctx context.Context, q Querier, ids []int64) (map[int64]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	rows, err := q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]*models.Product, len(ids))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[product.ID] = product
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// ListProductsByCategory returns every product in the category, or every product when
// categoryID is nil.
func ListProductsByCategory(ctx context.Context, q Querier, categoryID *int64) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE ($1::BIGINT IS NULL OR category_id = $1) ORDER BY id`

	rows, err := q.QueryContext(ctx, query, nullableInt64(categoryID))
	if err != nil {
		return nil, fmt.Errorf("list products by category: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

func UpdateProductPrice(ctx context.Context, q Querier, productID int64, price decimal.Decimal) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products
		 SET price = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2`,
		price, productID)
	if err != nil {
		return fmt.Errorf("update product price: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

func ListProducts(ctx context.Context, q Querier, page, pageSize int, onlyAvailable bool) (*OffsetPage, error) {
	var total int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE (NOT $1 OR is_available)`, onlyAvailable).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE (NOT $1 OR is_available)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := q.QueryContext(ctx, query, onlyAvailable, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// EnsureCategory returns the id of the named category, creating it on first use.
func EnsureCategory(ctx context.Context, q Querier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO categories (name, created_at)
		 VALUES ($1, NOW())
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure category %q: %w", name, err)
	}
	return id, nil
}

// MarkMissingUnavailable flags every product whose vendor article id is not in keep as
// unavailable with zero stock.
func MarkMissingUnavailable(ctx context.Context, q Querier, keep []string) (int64, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE products
		 SET is_available = FALSE, available_quantity = 0, version = version + 1, updated_at = NOW()
		 WHERE is_available AND NOT (vendor_article_id = ANY($1))`,
		pq.Array(keep))
	if err != nil {
		return 0, fmt.Errorf("mark missing products unavailable: %w", err)
	}

	return result.RowsAffected()
}
