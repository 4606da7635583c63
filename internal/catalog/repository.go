package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var ErrProductNotFound = errors.New("product not found")

type Repository interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetProductsForCheckout(ctx context.Context, ids []string) (map[string]*Product, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetProduct(ctx context.Context, id string) (*Product, error) {
	query := `
		SELECT id, vendor_id, vendor_name, name, price, quantity, reserved_quantity, active
		FROM products
		WHERE id = $1
	`

	var p Product
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.VendorID, &p.VendorName, &p.Name,
		&p.Price, &p.Quantity, &p.ReservedQuantity, &p.Active,
	)
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *repository) GetProductsForCheckout(ctx context.Context, ids []string) (map[string]*Product, error) {
	query := `
		SELECT id, vendor_id, vendor_name, name, price, quantity, reserved_quantity, active
		FROM products
		WHERE id = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[string]*Product, len(ids))
	for rows.Next() {
		var p Product
		err := rows.Scan(
			&p.ID, &p.VendorID, &p.VendorName, &p.Name,
			&p.Price, &p.Quantity, &p.ReservedQuantity, &p.Active,
		)
		if err != nil {
			return nil, err
		}
		products[p.ID] = &p
	}

	return products, rows.Err()
}
