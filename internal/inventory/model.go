package inventory

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	StatusHeld     ReservationStatus = "held"
	StatusReleased ReservationStatus = "released"
)

// Reservation is a hold against product stock, taken in the same
// transaction that persists the order it belongs to. The token (ID) is
// what makes release idempotent: compensating a reservation twice is a
// no-op, not a double increment.
type Reservation struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	Status     ReservationStatus
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ReleasedAt *time.Time
}

type Line struct {
	ProductID string
	Quantity  int
}
