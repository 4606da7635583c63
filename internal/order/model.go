package order

import (
	"time"

	"agromart-be/internal/payment"

	"github.com/google/uuid"
)

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

// DeliveryAddress is embedded into the order as a value snapshot at
// checkout time. Later address-book edits never reach into an order.
type DeliveryAddress struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
}

// LineItem freezes the catalog state of one cart line at order-creation
// time. UnitPrice and LineTotal are immutable snapshots.
type LineItem struct {
	ProductID string `json:"productId"`
	VendorID  string `json:"vendorId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
}

// VendorSubOrder is the portion of a multi-vendor order attributable to
// one seller. Sub-orders are created alongside the parent and never
// added or removed afterward.
type VendorSubOrder struct {
	VendorID       string     `json:"vendorId"`
	VendorName     string     `json:"vendorName"`
	Status         SubStatus  `json:"status"`
	TrackingNumber *string    `json:"trackingNumber,omitempty"`
	TrackingURL    *string    `json:"trackingUrl,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
	Items          []LineItem `json:"items"`
}

// LifecycleEntry is one record of the append-only audit trail. Entries
// are never mutated or reordered.
type LifecycleEntry struct {
	Stage     string    `json:"stage"`
	Actor     string    `json:"actor"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Cancellation struct {
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelledAt"`
}

type PaymentInfo struct {
	GatewayOrderID   *string        `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID *string        `json:"gatewayPaymentId,omitempty"`
	Status           payment.Status `json:"status"`
	Amount           int64          `json:"amount"`
	Currency         string         `json:"currency"`
	PaidAt           *time.Time     `json:"paidAt,omitempty"`
}

// Order is the root aggregate. It is created once, atomically, from a
// validated cart, then only ever transitioned through status values.
type Order struct {
	ID              uuid.UUID        `json:"id"`
	OrderNumber     string           `json:"orderNumber"`
	BuyerID         string           `json:"buyerId"`
	Status          Status           `json:"status"`
	PaymentMethod   PaymentMethod    `json:"paymentMethod"`
	Subtotal        int64            `json:"subtotal"`
	DeliveryFee     int64            `json:"deliveryFee"`
	Total           int64            `json:"total"`
	DeliveryAddress DeliveryAddress  `json:"deliveryAddress"`
	Items           []LineItem       `json:"items"`
	SubOrders       []VendorSubOrder `json:"vendorSubOrders"`
	Payment         PaymentInfo      `json:"payment"`
	Lifecycle       []LifecycleEntry `json:"lifecycle"`
	Cancellation    *Cancellation    `json:"cancellation,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// SubOrder returns the sub-order for a vendor, or nil when the vendor
// has no items in this order.
func (o *Order) SubOrder(vendorID string) *VendorSubOrder {
	for i := range o.SubOrders {
		if o.SubOrders[i].VendorID == vendorID {
			return &o.SubOrders[i]
		}
	}
	return nil
}

// BuildSubOrders partitions line items by vendor, preserving first-seen
// vendor order. A vendor with zero items is never represented.
func BuildSubOrders(items []LineItem, vendorNames map[string]string) []VendorSubOrder {
	var subs []VendorSubOrder
	index := make(map[string]int)

	for _, item := range items {
		i, ok := index[item.VendorID]
		if !ok {
			i = len(subs)
			index[item.VendorID] = i
			subs = append(subs, VendorSubOrder{
				VendorID:   item.VendorID,
				VendorName: vendorNames[item.VendorID],
				Status:     SubStatusPending,
			})
		}
		subs[i].Items = append(subs[i].Items, item)
	}

	return subs
}
