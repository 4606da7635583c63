package order

import (
	"context"
	"database/sql"
	"time"

	"agromart-be/internal/inventory"

	"github.com/google/uuid"
)

type TrackingInfo struct {
	Number *string
	URL    *string
}

type Repository interface {
	// CreateOrderTx persists the order, its items, sub-orders and first
	// lifecycle entry together with the stock reservation in ONE
	// transaction. Either everything commits or nothing does.
	CreateOrderTx(ctx context.Context, o *Order, reservationID uuid.UUID, expiresAt time.Time) error

	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error)

	UpdateStatusTx(ctx context.Context, orderID uuid.UUID, from, to Status, entry LifecycleEntry, tracking *TrackingInfo) error
	UpdateSubOrderTx(ctx context.Context, orderID uuid.UUID, vendorID string, from, to SubStatus, parentFrom, parentTo Status, entries []LifecycleEntry, tracking *TrackingInfo) error
	CancelTx(ctx context.Context, orderID uuid.UUID, from Status, reason string, entry LifecycleEntry) error

	SetPaymentIntent(ctx context.Context, orderID uuid.UUID, gatewayOrderID string) error
	CompletePaymentTx(ctx context.Context, orderID uuid.UUID, gatewayPaymentID string, entry LifecycleEntry) (bool, error)
	CancelPaymentTx(ctx context.Context, orderID uuid.UUID, reason string, entry LifecycleEntry) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrderTx(ctx context.Context, o *Order, reservationID uuid.UUID, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, buyer_id, status, payment_method,
			subtotal, delivery_fee, total,
			addr_full_name, addr_phone, addr_line, addr_city, addr_state, addr_pincode,
			payment_status, payment_amount, payment_currency,
			notes, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		o.ID, o.OrderNumber, o.BuyerID, o.Status, o.PaymentMethod,
		o.Subtotal, o.DeliveryFee, o.Total,
		o.DeliveryAddress.FullName, o.DeliveryAddress.Phone, o.DeliveryAddress.Address,
		o.DeliveryAddress.City, o.DeliveryAddress.State, o.DeliveryAddress.Pincode,
		o.Payment.Status, o.Payment.Amount, o.Payment.Currency,
		o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for i, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, position, product_id, vendor_id, name,
				unit_price, quantity, line_total
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			o.ID, i, item.ProductID, item.VendorID, item.Name,
			item.UnitPrice, item.Quantity, item.LineTotal,
		)
		if err != nil {
			return err
		}
	}

	for i, sub := range o.SubOrders {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vendor_sub_orders (order_id, position, vendor_id, vendor_name, status)
			VALUES ($1,$2,$3,$4,$5)
		`, o.ID, i, sub.VendorID, sub.VendorName, sub.Status)
		if err != nil {
			return err
		}
	}

	for _, entry := range o.Lifecycle {
		if err := insertLifecycle(ctx, tx, o.ID, entry); err != nil {
			return err
		}
	}

	lines := make([]inventory.Line, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if err := inventory.ReserveTx(ctx, tx, reservationID, o.ID, lines, expiresAt); err != nil {
		return err
	}

	return tx.Commit()
}

func insertLifecycle(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, entry LifecycleEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_lifecycle (order_id, stage, actor, notes, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, orderID, entry.Stage, entry.Actor, entry.Notes, entry.CreatedAt)
	return err
}

func (r *repository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `
		SELECT id, order_number, buyer_id, status, payment_method,
		       subtotal, delivery_fee, total,
		       addr_full_name, addr_phone, addr_line, addr_city, addr_state, addr_pincode,
		       payment_status, gateway_order_id, gateway_payment_id,
		       payment_amount, payment_currency, paid_at,
		       cancellation_reason, cancelled_at, notes, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := r.loadDetails(ctx, o); err != nil {
		return nil, err
	}
	if err := r.loadLifecycle(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM orders WHERE gateway_order_id = $1`, gatewayOrderID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetOrder(ctx, id)
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error) {
	query := `
		SELECT id, order_number, buyer_id, status, payment_method,
		       subtotal, delivery_fee, total,
		       addr_full_name, addr_phone, addr_line, addr_city, addr_state, addr_pincode,
		       payment_status, gateway_order_id, gateway_payment_id,
		       payment_amount, payment_currency, paid_at,
		       cancellation_reason, cancelled_at, notes, created_at, updated_at
		FROM orders
		WHERE buyer_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, o := range orders {
		if err := r.loadDetails(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o                  Order
		gatewayOrderID     sql.NullString
		gatewayPaymentID   sql.NullString
		paidAt             sql.NullTime
		cancellationReason sql.NullString
		cancelledAt        sql.NullTime
	)

	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.BuyerID, &o.Status, &o.PaymentMethod,
		&o.Subtotal, &o.DeliveryFee, &o.Total,
		&o.DeliveryAddress.FullName, &o.DeliveryAddress.Phone, &o.DeliveryAddress.Address,
		&o.DeliveryAddress.City, &o.DeliveryAddress.State, &o.DeliveryAddress.Pincode,
		&o.Payment.Status, &gatewayOrderID, &gatewayPaymentID,
		&o.Payment.Amount, &o.Payment.Currency, &paidAt,
		&cancellationReason, &cancelledAt, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if gatewayOrderID.Valid {
		o.Payment.GatewayOrderID = &gatewayOrderID.String
	}
	if gatewayPaymentID.Valid {
		o.Payment.GatewayPaymentID = &gatewayPaymentID.String
	}
	if paidAt.Valid {
		o.Payment.PaidAt = &paidAt.Time
	}
	if cancellationReason.Valid && cancelledAt.Valid {
		o.Cancellation = &Cancellation{
			Reason:      cancellationReason.String,
			CancelledAt: cancelledAt.Time,
		}
	}

	return &o, nil
}

func (r *repository) loadDetails(ctx context.Context, o *Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, vendor_id, name, unit_price, quantity, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item LineItem
		err := rows.Scan(&item.ProductID, &item.VendorID, &item.Name,
			&item.UnitPrice, &item.Quantity, &item.LineTotal)
		if err != nil {
			return err
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	subRows, err := r.db.QueryContext(ctx, `
		SELECT vendor_id, vendor_name, status, tracking_number, tracking_url, delivered_at
		FROM vendor_sub_orders
		WHERE order_id = $1
		ORDER BY position
	`, o.ID)
	if err != nil {
		return err
	}
	defer subRows.Close()

	for subRows.Next() {
		var (
			sub            VendorSubOrder
			trackingNumber sql.NullString
			trackingURL    sql.NullString
			deliveredAt    sql.NullTime
		)
		err := subRows.Scan(&sub.VendorID, &sub.VendorName, &sub.Status,
			&trackingNumber, &trackingURL, &deliveredAt)
		if err != nil {
			return err
		}
		if trackingNumber.Valid {
			sub.TrackingNumber = &trackingNumber.String
		}
		if trackingURL.Valid {
			sub.TrackingURL = &trackingURL.String
		}
		if deliveredAt.Valid {
			sub.DeliveredAt = &deliveredAt.Time
		}
		for _, item := range o.Items {
			if item.VendorID == sub.VendorID {
				sub.Items = append(sub.Items, item)
			}
		}
		o.SubOrders = append(o.SubOrders, sub)
	}
	return subRows.Err()
}

func (r *repository) loadLifecycle(ctx context.Context, o *Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT stage, actor, notes, created_at
		FROM order_lifecycle
		WHERE order_id = $1
		ORDER BY id
	`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var entry LifecycleEntry
		if err := rows.Scan(&entry.Stage, &entry.Actor, &entry.Notes, &entry.CreatedAt); err != nil {
			return err
		}
		o.Lifecycle = append(o.Lifecycle, entry)
	}
	return rows.Err()
}

func (r *repository) UpdateStatusTx(ctx context.Context, orderID uuid.UUID, from, to Status, entry LifecycleEntry, tracking *TrackingInfo) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var number, url *string
	if tracking != nil {
		number, url = tracking.Number, tracking.URL
	}

	// Conditional on the observed status: a concurrent transition makes
	// this a stale update and it must not apply.
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    tracking_number = COALESCE($2, tracking_number),
		    tracking_url = COALESCE($3, tracking_url),
		    updated_at = now()
		WHERE id = $4 AND status = $5
	`, to, number, url, orderID, from)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}

	if err := insertLifecycle(ctx, tx, orderID, entry); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *repository) UpdateSubOrderTx(ctx context.Context, orderID uuid.UUID, vendorID string, from, to SubStatus, parentFrom, parentTo Status, entries []LifecycleEntry, tracking *TrackingInfo) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var number, url *string
	if tracking != nil {
		number, url = tracking.Number, tracking.URL
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE vendor_sub_orders
		SET status = $1,
		    tracking_number = COALESCE($2, tracking_number),
		    tracking_url = COALESCE($3, tracking_url),
		    delivered_at = CASE WHEN $1 = 'delivered' THEN now() ELSE delivered_at END
		WHERE order_id = $4 AND vendor_id = $5 AND status = $6
	`, to, number, url, orderID, vendorID, from)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}

	if parentTo != parentFrom {
		res, err = tx.ExecContext(ctx, `
			UPDATE orders SET status = $1, updated_at = now()
			WHERE id = $2 AND status = $3
		`, parentTo, orderID, parentFrom)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrInvalidTransition
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET updated_at = now() WHERE id = $1
		`, orderID)
		if err != nil {
			return err
		}
	}

	for _, entry := range entries {
		if err := insertLifecycle(ctx, tx, orderID, entry); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *repository) CancelTx(ctx context.Context, orderID uuid.UUID, from Status, reason string, entry LifecycleEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = 'cancelled', cancellation_reason = $1, cancelled_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
	`, reason, orderID, from)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotCancellable
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE vendor_sub_orders SET status = 'cancelled'
		WHERE order_id = $1 AND status NOT IN ('delivered', 'cancelled')
	`, orderID)
	if err != nil {
		return err
	}

	if err := insertLifecycle(ctx, tx, orderID, entry); err != nil {
		return err
	}

	// Guarded by the reservation token: a retried cancellation releases
	// nothing the second time.
	if _, err := inventory.ReleaseTx(ctx, tx, orderID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *repository) SetPaymentIntent(ctx context.Context, orderID uuid.UUID, gatewayOrderID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET gateway_order_id = $1, updated_at = now()
		WHERE id = $2 AND payment_status = 'pending'
	`, gatewayOrderID, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotPending
	}
	return nil
}

func (r *repository) CompletePaymentTx(ctx context.Context, orderID uuid.UUID, gatewayPaymentID string, entry LifecycleEntry) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// The payment_status guard is the idempotency check: a replayed
	// callback matches zero rows and applies nothing.
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = 'completed', gateway_payment_id = $1, paid_at = now(), updated_at = now()
		WHERE id = $2 AND payment_status = 'pending'
	`, gatewayPaymentID, orderID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = 'confirmed' WHERE id = $1 AND status = 'pending'
	`, orderID)
	if err != nil {
		return false, err
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		if err := insertLifecycle(ctx, tx, orderID, entry); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *repository) CancelPaymentTx(ctx context.Context, orderID uuid.UUID, reason string, entry LifecycleEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET payment_status = 'cancelled', updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'
	`, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotPending
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = 'cancelled', cancellation_reason = $1, cancelled_at = now()
		WHERE id = $2 AND status IN ('pending', 'confirmed')
	`, reason, orderID)
	if err != nil {
		return err
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotCancellable
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE vendor_sub_orders SET status = 'cancelled'
		WHERE order_id = $1 AND status NOT IN ('delivered', 'cancelled')
	`, orderID)
	if err != nil {
		return err
	}

	if err := insertLifecycle(ctx, tx, orderID, entry); err != nil {
		return err
	}

	if _, err := inventory.ReleaseTx(ctx, tx, orderID); err != nil {
		return err
	}

	return tx.Commit()
}
