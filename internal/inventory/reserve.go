package inventory

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reservationsReleased = promauto.NewCounter(prometheus.CounterOpts{
	Name: "inventory_reservations_released_total",
	Help: "Stock reservations released back to the catalog",
})

// ReserveTx takes a stock hold for every line inside the caller's
// transaction. Each decrement is a single conditional UPDATE, never a
// read-then-write, so concurrent checkouts can not both win the last
// unit. A failed line returns InsufficientStockError; rolling back the
// transaction unwinds the earlier decrements, which makes the whole
// reservation all-or-nothing.
func ReserveTx(ctx context.Context, tx *sql.Tx, reservationID, orderID uuid.UUID, lines []Line, expiresAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (id, order_id, status, expires_at, created_at)
		VALUES ($1, $2, 'held', $3, now())
	`, reservationID, orderID, expiresAt)
	if err != nil {
		return err
	}

	for _, line := range lines {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET reserved_quantity = reserved_quantity + $1
			WHERE id = $2 AND quantity - reserved_quantity >= $1
		`, line.Quantity, line.ProductID)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return &InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservation_items (reservation_id, product_id, quantity)
			VALUES ($1, $2, $3)
		`, reservationID, line.ProductID, line.Quantity)
		if err != nil {
			return err
		}
	}

	return nil
}

// ReleaseTx gives the order's hold back to the catalog inside the
// caller's transaction. The guarded status flip is what makes release
// idempotent: once a reservation is released, a retried cancellation
// matches zero rows and increments nothing. Returns whether stock was
// actually released.
func ReleaseTx(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) (bool, error) {
	var reservationID uuid.UUID
	err := tx.QueryRowContext(ctx, `
		UPDATE reservations
		SET status = 'released', released_at = now()
		WHERE order_id = $1 AND status = 'held'
		RETURNING id
	`, orderID).Scan(&reservationID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products p
		SET reserved_quantity = p.reserved_quantity - ri.quantity
		FROM reservation_items ri
		WHERE ri.reservation_id = $1 AND p.id = ri.product_id
	`, reservationID)
	if err != nil {
		return false, err
	}

	reservationsReleased.Inc()
	return true, nil
}
