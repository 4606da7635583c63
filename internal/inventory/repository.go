package inventory

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// FindOrphaned returns orders whose reservation is still held past
	// its TTL while payment never arrived. These are the only orphans
	// possible: reservations commit in the same transaction as their
	// order, so a crash can not strand one without an order.
	FindOrphaned(ctx context.Context, before time.Time) ([]uuid.UUID, error)
	Availability(ctx context.Context, productID string) (int, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindOrphaned(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT r.order_id
		FROM reservations r
		JOIN orders o ON o.id = r.order_id
		WHERE r.status = 'held'
		  AND r.expires_at < $1
		  AND o.payment_method = 'online'
		  AND o.payment_status = 'pending'
		  AND o.status = 'pending'
	`

	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orderIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		orderIDs = append(orderIDs, id)
	}

	return orderIDs, rows.Err()
}

func (r *repository) Availability(ctx context.Context, productID string) (int, error) {
	var available int
	err := r.db.QueryRowContext(ctx, `
		SELECT quantity - reserved_quantity FROM products WHERE id = $1
	`, productID).Scan(&available)
	if err != nil {
		return 0, err
	}
	return available, nil
}
