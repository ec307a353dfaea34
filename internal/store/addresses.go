package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/storefront-api/internal/database"
	"github.com/safar/storefront-api/internal/models"
)

// InsertAddress always creates a new row; addresses attached to orders are never updated.
func InsertAddress(ctx context.Context, q Querier, address *models.Address) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO addresses (first_name, last_name, company, street, postal_code, city, country, phone, email, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 RETURNING id, created_at`,
		address.FirstName,
		address.LastName,
		address.Company,
		address.Street,
		address.PostalCode,
		address.City,
		address.Country,
		address.Phone,
		address.Email,
	).Scan(&address.ID, &address.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}

	return nil
}

func GetAddress(ctx context.Context, q Querier, id int64) (*models.Address, error) {
	address := &models.Address{}

	err := q.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, company, street, postal_code, city, country, phone, email, created_at
		 FROM addresses
		 WHERE id = $1`,
		id).Scan(
		&address.ID,
		&address.FirstName,
		&address.LastName,
		&address.Company,
		&address.Street,
		&address.PostalCode,
		&address.City,
		&address.Country,
		&address.Phone,
		&address.Email,
		&address.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return address, nil
}
