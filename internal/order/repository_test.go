package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"agromart-be/internal/inventory"
	"agromart-be/internal/payment"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder() *Order {
	now := time.Now()
	items := []LineItem{
		{ProductID: "p1", VendorID: "v1", Name: "Tomato", UnitPrice: 5000, Quantity: 2, LineTotal: 10000},
		{ProductID: "p2", VendorID: "v2", Name: "Apple", UnitPrice: 12000, Quantity: 1, LineTotal: 12000},
	}
	return &Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-260831-0a1b2c3d",
		BuyerID:       "buyer-1",
		Status:        StatusPending,
		PaymentMethod: PaymentCOD,
		Subtotal:      22000,
		DeliveryFee:   4000,
		Total:         26000,
		DeliveryAddress: DeliveryAddress{
			FullName: "Asha Rao", Phone: "9876543210", Address: "14 Market Road",
			City: "Pune", State: "Maharashtra", Pincode: "411001",
		},
		Items: items,
		SubOrders: BuildSubOrders(items, map[string]string{
			"v1": "Green Farm", "v2": "Hill Orchard",
		}),
		Payment: PaymentInfo{Status: payment.StatusPending, Amount: 26000, Currency: "INR"},
		Lifecycle: []LifecycleEntry{
			{Stage: "pending", Actor: "buyer:buyer-1", Notes: "order placed", CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRepository_CreateOrderTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)
		o := testOrder()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO vendor_sub_orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO vendor_sub_orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_lifecycle").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO reservations").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE products`).
			WithArgs(2, "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO reservation_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE products`).
			WithArgs(1, "p2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO reservation_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = repo.CreateOrderTx(ctx, o, uuid.New(), time.Now().Add(30*time.Minute))

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error - Conditional decrement fails, everything rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)
		o := testOrder()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO vendor_sub_orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO vendor_sub_orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_lifecycle").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO reservations").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE products`).
			WithArgs(2, "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO reservation_items").WillReturnResult(sqlmock.NewResult(0, 1))
		// p2 lost the race: zero rows match the stock guard.
		mock.ExpectExec(`UPDATE products`).
			WithArgs(1, "p2").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err = repo.CreateOrderTx(ctx, o, uuid.New(), time.Now().Add(30*time.Minute))

		var stockErr *inventory.InsufficientStockError
		assert.ErrorAs(t, err, &stockErr)
		assert.Equal(t, "p2", stockErr.ProductID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error - Insert fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO orders").WillReturnError(errors.New("db error"))
		mock.ExpectRollback()

		err = repo.CreateOrderTx(ctx, testOrder(), uuid.New(), time.Now())

		assert.Error(t, err)
	})
}

func TestRepository_UpdateStatusTx(t *testing.T) {
	ctx := context.Background()
	orderID := uuid.New()
	entry := LifecycleEntry{Stage: "shipped", Actor: "vendor:v1", CreatedAt: time.Now()}

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders").
			WithArgs(StatusShipped, nil, nil, orderID, StatusConfirmed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_lifecycle").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err = repo.UpdateStatusTx(ctx, orderID, StatusConfirmed, StatusShipped, entry, nil)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error - Stale update matches zero rows", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err = repo.UpdateStatusTx(ctx, orderID, StatusConfirmed, StatusShipped, entry, nil)

		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_UpdateSubOrderTx(t *testing.T) {
	ctx := context.Background()
	orderID := uuid.New()
	entries := []LifecycleEntry{
		{Stage: "suborder_packed", Actor: "vendor:v1", CreatedAt: time.Now()},
	}

	t.Run("Success - parent unchanged", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE vendor_sub_orders").
			WithArgs(SubStatusPacked, nil, nil, orderID, "v1", SubStatusConfirmed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE orders SET updated_at").
			WithArgs(orderID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_lifecycle").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err = repo.UpdateSubOrderTx(ctx, orderID, "v1", SubStatusConfirmed, SubStatusPacked,
			StatusConfirmed, StatusConfirmed, entries, nil)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success - parent progresses", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE vendor_sub_orders").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE orders SET status").
			WithArgs(StatusPacked, orderID, StatusConfirmed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_lifecycle").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err = repo.UpdateSubOrderTx(ctx, orderID, "v1", SubStatusConfirmed, SubStatusPacked,
			StatusConfirmed, StatusPacked, entries, nil)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error - Stale sub-order status", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE vendor_sub_orders").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err = repo.UpdateSubOrderTx(ctx, orderID, "v1", SubStatusConfirmed, SubStatusPacked,
			StatusConfirmed, StatusConfirmed, entries, nil)

		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestRepository_CancelTx(t *testing.T) {
	ctx := context.Background()
	orderID := uuid.New()
	reservationID := uuid.New()
	entry := LifecycleEntry{Stage: "cancelled", Actor: "buyer:buyer-1", CreatedAt: time.Now()}

	t.Run("Success releases held stock", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders").
			WithArgs("changed my mind", orderID, StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE vendor_sub_orders").WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("INSERT INTO order_lifecycle").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE reservations").
			WithArgs(orderID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(reservationID))
		mock.ExpectExec("UPDATE products").WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err = repo.CancelTx(ctx, orderID, StatusPending, "changed my mind", entry)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Retried cancel releases nothing twice", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE vendor_sub_orders").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO order_lifecycle").WillReturnResult(sqlmock.NewResult(1, 1))
		// Reservation already released: the guarded flip matches no row
		// and no product counters move.
		mock.ExpectQuery("UPDATE reservations").
			WithArgs(orderID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectCommit()

		err = repo.CancelTx(ctx, orderID, StatusPending, "retry", entry)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error - Status moved on", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err = repo.CancelTx(ctx, orderID, StatusPending, "too late", entry)

		assert.ErrorIs(t, err, ErrNotCancellable)
	})
}

func TestRepository_SetPaymentIntent(t *testing.T) {
	ctx := context.Background()
	orderID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectExec("UPDATE orders SET gateway_order_id").
			WithArgs("rzp_order_1", orderID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.SetPaymentIntent(ctx, orderID, "rzp_order_1")
		assert.NoError(t, err)
	})

	t.Run("Error - Payment no longer pending", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectExec("UPDATE orders SET gateway_order_id").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = repo.SetPaymentIntent(ctx, orderID, "rzp_order_1")
		assert.ErrorIs(t, err, ErrPaymentNotPending)
	})
}

func TestRepository_CompletePaymentTx(t *testing.T) {
	ctx := context.Background()
	orderID := uuid.New()
	entry := LifecycleEntry{Stage: "confirmed", Actor: "system", CreatedAt: time.Now()}

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders").
			WithArgs("rzp_pay_1", orderID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE orders SET status = 'confirmed'").
			WithArgs(orderID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_lifecycle").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		applied, err := repo.CompletePaymentTx(ctx, orderID, "rzp_pay_1", entry)

		assert.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Replay applies nothing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		applied, err := repo.CompletePaymentTx(ctx, orderID, "rzp_pay_1", entry)

		assert.NoError(t, err)
		assert.False(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Order already confirmed skips the lifecycle entry", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE orders SET status = 'confirmed'").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		applied, err := repo.CompletePaymentTx(ctx, orderID, "rzp_pay_1", entry)

		assert.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_CancelPaymentTx(t *testing.T) {
	ctx := context.Background()
	orderID := uuid.New()
	reservationID := uuid.New()
	entry := LifecycleEntry{Stage: "cancelled", Actor: "buyer:buyer-1", CreatedAt: time.Now()}

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders SET payment_status = 'cancelled'").
			WithArgs(orderID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE orders").
			WithArgs("payment cancelled", orderID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE vendor_sub_orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_lifecycle").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE reservations").
			WithArgs(orderID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(reservationID))
		mock.ExpectExec("UPDATE products").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = repo.CancelPaymentTx(ctx, orderID, "payment cancelled", entry)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error - Payment not pending", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders SET payment_status = 'cancelled'").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err = repo.CancelPaymentTx(ctx, orderID, "payment cancelled", entry)

		assert.ErrorIs(t, err, ErrPaymentNotPending)
	})
}

func TestRepository_GetByGatewayOrderID(t *testing.T) {
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectQuery("SELECT id FROM orders WHERE gateway_order_id").
			WithArgs("rzp_order_missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err = repo.GetByGatewayOrderID(ctx, "rzp_order_missing")

		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}
