package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agromart-be/internal/auth"
	"agromart-be/internal/cart"
	"agromart-be/internal/inventory"
	"agromart-be/internal/logger"
	"agromart-be/internal/payment"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders successfully created",
	})
	callbacksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_callbacks_rejected_total",
		Help: "Payment callbacks rejected for an invalid signature",
	})
	orphansReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orphaned_reservations_released_total",
		Help: "Stale payment-pending orders cancelled by the sweeper",
	})
)

type CheckoutInput struct {
	Items           []cart.Item
	DeliveryAddress DeliveryAddress
	PaymentMethod   PaymentMethod
	Notes           string
}

type StatusUpdateInput struct {
	Status         Status
	Reason         string
	TrackingNumber *string
	TrackingURL    *string
}

type SubStatusUpdateInput struct {
	Status         SubStatus
	Reason         string
	TrackingNumber *string
	TrackingURL    *string
}

// Config carries the pricing constants and payment settings the order
// core needs. Amounts are paise.
type Config struct {
	FreeDeliveryThreshold int64
	FlatDeliveryFee       int64
	ReservationTTL        time.Duration
	WebhookSecret         string
	Currency              string
}

type Service interface {
	Checkout(ctx context.Context, buyerID string, input CheckoutInput) (*Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, actor auth.Actor, input StatusUpdateInput) (*Order, error)
	UpdateSubOrderStatus(ctx context.Context, orderID uuid.UUID, vendorID string, actor auth.Actor, input SubStatusUpdateInput) (*Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor auth.Actor) (*Order, error)

	CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, buyerID string) (*payment.Intent, error)
	ConfirmPayment(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) error
	CancelPayment(ctx context.Context, orderID uuid.UUID, buyerID string) error

	ReleaseOrphaned(ctx context.Context) (int, error)
}

type service struct {
	repo    Repository
	cartSvc cart.Service
	invRepo inventory.Repository
	gateway payment.Gateway
	cfg     Config
}

func NewService(repo Repository, cartSvc cart.Service, invRepo inventory.Repository, gateway payment.Gateway, cfg Config) Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &service{
		repo:    repo,
		cartSvc: cartSvc,
		invRepo: invRepo,
		gateway: gateway,
		cfg:     cfg,
	}
}

func actorLabel(actor auth.Actor) string {
	if actor.Role == auth.RoleSystem {
		return "system"
	}
	return fmt.Sprintf("%s:%s", actor.Role, actor.ID)
}

func (s *service) Checkout(ctx context.Context, buyerID string, input CheckoutInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Checkout"),
		zap.String("buyer_id", buyerID),
		zap.Int("item_count", len(input.Items)),
	)

	if err := validateCheckoutInput(input); err != nil {
		log.Warn("invalid checkout input", zap.Error(err))
		return nil, err
	}

	lines, err := s.cartSvc.Validate(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	items := make([]LineItem, 0, len(lines))
	vendorNames := make(map[string]string)
	for _, line := range lines {
		items = append(items, LineItem{
			ProductID: line.ProductID,
			VendorID:  line.VendorID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal,
		})
		vendorNames[line.VendorID] = line.VendorName
	}

	subtotal, deliveryFee, total := ComputeTotals(items, s.cfg.FreeDeliveryThreshold, s.cfg.FlatDeliveryFee)

	now := time.Now()
	o := &Order{
		ID:              uuid.New(),
		OrderNumber:     GenerateOrderNumber(),
		BuyerID:         buyerID,
		Status:          StatusPending,
		PaymentMethod:   input.PaymentMethod,
		Subtotal:        subtotal,
		DeliveryFee:     deliveryFee,
		Total:           total,
		DeliveryAddress: input.DeliveryAddress,
		Items:           items,
		SubOrders:       BuildSubOrders(items, vendorNames),
		Payment: PaymentInfo{
			Status:   payment.StatusPending,
			Amount:   total,
			Currency: s.cfg.Currency,
		},
		Notes: input.Notes,
		Lifecycle: []LifecycleEntry{{
			Stage:     string(StatusPending),
			Actor:     actorLabel(auth.Actor{ID: buyerID, Role: auth.RoleBuyer}),
			Notes:     "order placed",
			CreatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.repo.CreateOrderTx(ctx, o, uuid.New(), now.Add(s.cfg.ReservationTTL))
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			log.Warn("reservation lost race", zap.Error(err))
			return nil, err
		}
		log.Error("failed to persist order", zap.Error(err))
		return nil, err
	}

	ordersCreated.Inc()
	log.Info("order created",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber),
		zap.Int("vendor_count", len(o.SubOrders)),
		zap.Int64("total", o.Total),
	)

	return o, nil
}

func validateCheckoutInput(input CheckoutInput) error {
	var fields []FieldError

	if len(input.Items) == 0 {
		fields = append(fields, FieldError{Field: "items", Message: "cart is empty"})
	}
	if input.PaymentMethod != PaymentCOD && input.PaymentMethod != PaymentOnline {
		fields = append(fields, FieldError{Field: "paymentMethod", Message: "must be cod or online"})
	}

	addr := input.DeliveryAddress
	required := []struct {
		field string
		value string
	}{
		{"deliveryAddress.fullName", addr.FullName},
		{"deliveryAddress.phone", addr.Phone},
		{"deliveryAddress.address", addr.Address},
		{"deliveryAddress.city", addr.City},
		{"deliveryAddress.state", addr.State},
		{"deliveryAddress.pincode", addr.Pincode},
	}
	for _, r := range required {
		if r.value == "" {
			fields = append(fields, FieldError{Field: r.field, Message: "is required"})
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !s.canView(o, actor) {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *service) canView(o *Order, actor auth.Actor) bool {
	if actor.IsAdmin() {
		return true
	}
	if actor.Role == auth.RoleBuyer {
		return o.BuyerID == actor.ID
	}
	if actor.Role == auth.RoleVendor {
		return o.SubOrder(actor.ID) != nil
	}
	return false
}

func (s *service) ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error) {
	return s.repo.ListByBuyer(ctx, buyerID)
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, actor auth.Actor, input StatusUpdateInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateStatus"),
		zap.String("order_id", orderID.String()),
		zap.String("to_status", string(input.Status)),
		zap.String("actor", actorLabel(actor)),
	)

	if actor.Role != auth.RoleVendor && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if !input.Status.IsValid() {
		return nil, &ValidationError{Fields: []FieldError{{Field: "status", Message: "unknown status"}}}
	}

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// A vendor may only move orders it fulfils a sub-order of.
	if actor.Role == auth.RoleVendor && o.SubOrder(actor.ID) == nil {
		log.Warn("vendor not part of order")
		return nil, ErrForbidden
	}

	// Same-state updates are no-ops: no transition, no lifecycle entry.
	if o.Status == input.Status {
		return o, nil
	}

	allowed := CanTransition(o.Status, input.Status)
	override := false
	if !allowed && actor.IsAdmin() && CanAdminTransition(o.Status, input.Status) {
		allowed = true
		override = true
	}
	if !allowed {
		log.Warn("transition rejected", zap.String("from_status", string(o.Status)))
		return nil, ErrInvalidTransition
	}

	// The parent may only read delivered once every sub-order does.
	if input.Status == StatusDelivered && len(o.SubOrders) > 0 {
		for _, sub := range o.SubOrders {
			if sub.Status != SubStatusDelivered {
				return nil, ErrInvalidTransition
			}
		}
	}

	notes := input.Reason
	if override {
		notes = "admin override"
		if input.Reason != "" {
			notes += ": " + input.Reason
		}
	}
	entry := LifecycleEntry{
		Stage:     string(input.Status),
		Actor:     actorLabel(actor),
		Notes:     notes,
		CreatedAt: time.Now(),
	}

	tracking := &TrackingInfo{Number: input.TrackingNumber, URL: input.TrackingURL}
	if err := s.repo.UpdateStatusTx(ctx, orderID, o.Status, input.Status, entry, tracking); err != nil {
		return nil, err
	}

	o.Status = input.Status
	o.Lifecycle = append(o.Lifecycle, entry)
	o.UpdatedAt = entry.CreatedAt

	log.Info("order status updated")
	return o, nil
}

func (s *service) UpdateSubOrderStatus(ctx context.Context, orderID uuid.UUID, vendorID string, actor auth.Actor, input SubStatusUpdateInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateSubOrderStatus"),
		zap.String("order_id", orderID.String()),
		zap.String("vendor_id", vendorID),
		zap.String("to_status", string(input.Status)),
	)

	if actor.Role == auth.RoleVendor && actor.ID != vendorID {
		return nil, ErrForbidden
	}
	if actor.Role != auth.RoleVendor && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if !input.Status.IsValid() {
		return nil, &ValidationError{Fields: []FieldError{{Field: "status", Message: "unknown status"}}}
	}

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	sub := o.SubOrder(vendorID)
	if sub == nil {
		return nil, ErrVendorNotInOrder
	}

	if sub.Status == input.Status {
		return o, nil
	}
	if !CanSubTransition(sub.Status, input.Status) {
		log.Warn("sub-order transition rejected", zap.String("from_status", string(sub.Status)))
		return nil, ErrInvalidTransition
	}

	now := time.Now()
	statuses := make([]SubStatus, len(o.SubOrders))
	for i, so := range o.SubOrders {
		statuses[i] = so.Status
		if so.VendorID == vendorID {
			statuses[i] = input.Status
		}
	}
	aggregated := AggregateStatus(statuses)

	// A vendor cancelling the last active sub-order cancels the whole
	// order, releasing its reservation like any other cancellation.
	if aggregated == StatusCancelled {
		reason := "all vendor sub-orders cancelled"
		entry := LifecycleEntry{
			Stage:     string(StatusCancelled),
			Actor:     actorLabel(actor),
			Notes:     subOrderNotes(vendorID, input.Reason),
			CreatedAt: now,
		}
		if err := s.repo.CancelTx(ctx, orderID, o.Status, reason, entry); err != nil {
			return nil, err
		}

		sub.Status = SubStatusCancelled
		o.Status = StatusCancelled
		o.Cancellation = &Cancellation{Reason: reason, CancelledAt: now}
		o.Lifecycle = append(o.Lifecycle, entry)
		o.UpdatedAt = now

		log.Info("order cancelled, no active sub-orders remain")
		return o, nil
	}

	entries := []LifecycleEntry{{
		Stage:     "suborder_" + string(input.Status),
		Actor:     actorLabel(actor),
		Notes:     subOrderNotes(vendorID, input.Reason),
		CreatedAt: now,
	}}

	// Derive the parent's status from the sub-orders. The parent only
	// ever moves forward here; delivered requires every sub-order
	// delivered by construction of AggregateStatus.
	parentFrom := o.Status
	parentTo := parentFrom
	if progressesParent(parentFrom, aggregated) {
		parentTo = aggregated
		entries = append(entries, LifecycleEntry{
			Stage:     string(parentTo),
			Actor:     actorLabel(actor),
			Notes:     "derived from vendor sub-orders",
			CreatedAt: now,
		})
	}

	tracking := &TrackingInfo{Number: input.TrackingNumber, URL: input.TrackingURL}
	err = s.repo.UpdateSubOrderTx(ctx, orderID, vendorID, sub.Status, input.Status, parentFrom, parentTo, entries, tracking)
	if err != nil {
		return nil, err
	}

	sub.Status = input.Status
	if input.Status == SubStatusDelivered {
		sub.DeliveredAt = &now
	}
	if input.TrackingNumber != nil {
		sub.TrackingNumber = input.TrackingNumber
	}
	if input.TrackingURL != nil {
		sub.TrackingURL = input.TrackingURL
	}
	o.Status = parentTo
	o.Lifecycle = append(o.Lifecycle, entries...)
	o.UpdatedAt = now

	log.Info("sub-order status updated", zap.String("parent_status", string(parentTo)))
	return o, nil
}

func subOrderNotes(vendorID, reason string) string {
	notes := "vendor " + vendorID
	if reason != "" {
		notes += ": " + reason
	}
	return notes
}

// progressesParent reports whether the aggregated stage moves the
// parent forward. Orders parked in cancelled/disputed/returned are
// never pulled back into the delivery chain by a sub-order update.
func progressesParent(current, aggregated Status) bool {
	currentRank, ok := statusRank[current]
	if !ok {
		return false
	}
	aggregatedRank, ok := statusRank[aggregated]
	if !ok {
		return false
	}
	return aggregatedRank > currentRank
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor auth.Actor) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Cancel"),
		zap.String("order_id", orderID.String()),
		zap.String("actor", actorLabel(actor)),
	)

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch {
	case actor.IsAdmin():
		if o.Status.IsTerminal() {
			return nil, ErrNotCancellable
		}
	case actor.Role == auth.RoleBuyer:
		if o.BuyerID != actor.ID {
			return nil, ErrForbidden
		}
		if o.Status != StatusPending && o.Status != StatusConfirmed {
			log.Warn("cancel rejected", zap.String("status", string(o.Status)))
			return nil, ErrNotCancellable
		}
	default:
		return nil, ErrForbidden
	}

	now := time.Now()
	entry := LifecycleEntry{
		Stage:     string(StatusCancelled),
		Actor:     actorLabel(actor),
		Notes:     reason,
		CreatedAt: now,
	}

	if err := s.repo.CancelTx(ctx, orderID, o.Status, reason, entry); err != nil {
		return nil, err
	}

	o.Status = StatusCancelled
	o.Cancellation = &Cancellation{Reason: reason, CancelledAt: now}
	for i := range o.SubOrders {
		if o.SubOrders[i].Status != SubStatusDelivered {
			o.SubOrders[i].Status = SubStatusCancelled
		}
	}
	o.Lifecycle = append(o.Lifecycle, entry)
	o.UpdatedAt = now

	log.Info("order cancelled", zap.String("reason", reason))
	return o, nil
}

func (s *service) CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, buyerID string) (*payment.Intent, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreatePaymentIntent"),
		zap.String("order_id", orderID.String()),
	)

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, ErrForbidden
	}
	if o.PaymentMethod != PaymentOnline {
		return nil, &ValidationError{Fields: []FieldError{{Field: "paymentMethod", Message: "order is not an online-payment order"}}}
	}
	if o.Payment.Status != payment.StatusPending {
		return nil, ErrPaymentNotPending
	}

	// Retried intent creation reuses the existing gateway order.
	if o.Payment.GatewayOrderID != nil {
		return &payment.Intent{
			GatewayOrderID: *o.Payment.GatewayOrderID,
			Amount:         o.Payment.Amount,
			Currency:       o.Payment.Currency,
		}, nil
	}

	intent, err := s.gateway.CreateOrder(ctx, o.OrderNumber, o.Total, o.Payment.Currency)
	if err != nil {
		// Payment stays pending; the buyer can retry later.
		log.Error("gateway order creation failed", zap.Error(err))
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	if err := s.repo.SetPaymentIntent(ctx, orderID, intent.GatewayOrderID); err != nil {
		return nil, err
	}

	log.Info("payment intent created", zap.String("gateway_order_id", intent.GatewayOrderID))
	return intent, nil
}

func (s *service) ConfirmPayment(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ConfirmPayment"),
		zap.String("gateway_order_id", gatewayOrderID),
	)

	o, err := s.repo.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return err
	}

	// Authenticity first: a bad signature must leave the order untouched
	// and is never retried.
	if !payment.VerifySignature(gatewayOrderID, gatewayPaymentID, signature, s.cfg.WebhookSecret) {
		callbacksRejected.Inc()
		log.Warn("payment callback signature mismatch")
		return payment.ErrInvalidSignature
	}

	if o.Payment.Status == payment.StatusCompleted {
		log.Info("payment callback replayed, already completed")
		return nil
	}

	entry := LifecycleEntry{
		Stage:     string(StatusConfirmed),
		Actor:     "system",
		Notes:     "payment completed",
		CreatedAt: time.Now(),
	}

	applied, err := s.repo.CompletePaymentTx(ctx, o.ID, gatewayPaymentID, entry)
	if err != nil {
		return err
	}
	if !applied {
		log.Info("payment already processed by a concurrent callback")
		return nil
	}

	log.Info("payment completed", zap.String("order_id", o.ID.String()))
	return nil
}

func (s *service) CancelPayment(ctx context.Context, orderID uuid.UUID, buyerID string) error {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.BuyerID != buyerID {
		return ErrForbidden
	}
	if o.Payment.Status != payment.StatusPending {
		return ErrPaymentNotPending
	}

	entry := LifecycleEntry{
		Stage:     string(StatusCancelled),
		Actor:     actorLabel(auth.Actor{ID: buyerID, Role: auth.RoleBuyer}),
		Notes:     "payment cancelled by buyer",
		CreatedAt: time.Now(),
	}

	return s.repo.CancelPaymentTx(ctx, orderID, "payment cancelled", entry)
}

// ReleaseOrphaned force-cancels online-payment orders whose reservation
// outlived the payment window, releasing their stock. Run periodically
// by the server and invocable by an operator.
func (s *service) ReleaseOrphaned(ctx context.Context) (int, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ReleaseOrphaned"),
	)

	orderIDs, err := s.invRepo.FindOrphaned(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	released := 0
	for _, id := range orderIDs {
		_, err := s.Cancel(ctx, id, "payment window expired", auth.Actor{ID: "system", Role: auth.RoleSystem})
		if err != nil {
			log.Error("failed to release orphaned reservation",
				zap.String("order_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		orphansReleased.Inc()
		released++
	}

	if released > 0 {
		log.Info("released orphaned reservations", zap.Int("count", released))
	}
	return released, nil
}
