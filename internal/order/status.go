package order

type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusHarvesting     Status = "harvesting"
	StatusPacked         Status = "packed"
	StatusQualityCheck   Status = "quality_check"
	StatusShipped        Status = "shipped"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusDisputed       Status = "disputed"
	StatusReturned       Status = "returned"
)

type SubStatus string

const (
	SubStatusPending    SubStatus = "pending"
	SubStatusConfirmed  SubStatus = "confirmed"
	SubStatusHarvesting SubStatus = "harvesting"
	SubStatusPacked     SubStatus = "packed"
	SubStatusShipped    SubStatus = "shipped"
	SubStatusDelivered  SubStatus = "delivered"
	SubStatusCancelled  SubStatus = "cancelled"
)

// Delivery-progress ranks. Statuses outside the chain (cancelled,
// disputed, returned) have no rank.
var statusRank = map[Status]int{
	StatusPending:        0,
	StatusConfirmed:      1,
	StatusHarvesting:     2,
	StatusPacked:         3,
	StatusQualityCheck:   4,
	StatusShipped:        5,
	StatusInTransit:      6,
	StatusOutForDelivery: 7,
	StatusDelivered:      8,
}

var subStatusRank = map[SubStatus]int{
	SubStatusPending:    0,
	SubStatusConfirmed:  1,
	SubStatusHarvesting: 2,
	SubStatusPacked:     3,
	SubStatusShipped:    5,
	SubStatusDelivered:  8,
}

// Parent stage a sub-order stage maps to under aggregation.
var subToParent = map[SubStatus]Status{
	SubStatusPending:    StatusPending,
	SubStatusConfirmed:  StatusConfirmed,
	SubStatusHarvesting: StatusHarvesting,
	SubStatusPacked:     StatusPacked,
	SubStatusShipped:    StatusShipped,
	SubStatusDelivered:  StatusDelivered,
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusHarvesting, StatusPacked,
		StatusQualityCheck, StatusShipped, StatusInTransit,
		StatusOutForDelivery, StatusDelivered, StatusCancelled,
		StatusDisputed, StatusReturned:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusReturned
}

func (s SubStatus) IsValid() bool {
	_, ok := subStatusRank[s]
	return ok || s == SubStatusCancelled
}

// CanTransition reports whether a regular (non-admin) actor may move an
// order from one status to another. Skipping forward over the optional
// harvest stages is allowed; moving backward is not.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}

	switch to {
	case StatusCancelled:
		return !from.IsTerminal()
	case StatusDisputed:
		return !from.IsTerminal() && from != StatusDisputed
	case StatusReturned:
		return from == StatusDelivered
	}

	fromRank, fromOK := statusRank[from]
	toRank, toOK := statusRank[to]
	if !fromOK || !toOK {
		return false
	}
	return toRank > fromRank && from != StatusDelivered
}

// CanAdminTransition allows administrators to override from any
// non-terminal state, plus the delivered -> returned path.
func CanAdminTransition(from, to Status) bool {
	if from == to || !to.IsValid() {
		return false
	}
	if from == StatusDelivered {
		return to == StatusReturned
	}
	return !from.IsTerminal()
}

func CanSubTransition(from, to SubStatus) bool {
	if from == to {
		return false
	}
	if to == SubStatusCancelled {
		return from != SubStatusDelivered
	}
	fromRank, fromOK := subStatusRank[from]
	toRank, toOK := subStatusRank[to]
	if !fromOK || !toOK {
		return false
	}
	return toRank > fromRank
}

// AggregateStatus derives the parent's delivery-stage status from its
// sub-orders: delivered if and only if every sub-order is delivered,
// cancelled when all are cancelled, otherwise the least-progressed
// non-cancelled sub-order's stage. The parent can never read delivered
// while any sub-order lags.
func AggregateStatus(subs []SubStatus) Status {
	if len(subs) == 0 {
		return StatusPending
	}

	minStage := SubStatusDelivered
	allCancelled := true
	for _, s := range subs {
		if s == SubStatusCancelled {
			continue
		}
		allCancelled = false
		if subStatusRank[s] < subStatusRank[minStage] {
			minStage = s
		}
	}

	if allCancelled {
		return StatusCancelled
	}
	return subToParent[minStage]
}
