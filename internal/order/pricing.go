package order

// ComputeTotals derives order pricing from the frozen line items. Orders
// at or above the free-delivery threshold ship free; everything else
// pays the flat fee. All amounts are paise.
func ComputeTotals(items []LineItem, freeDeliveryThreshold, flatDeliveryFee int64) (subtotal, deliveryFee, total int64) {
	for _, item := range items {
		subtotal += item.LineTotal
	}

	if subtotal >= freeDeliveryThreshold {
		deliveryFee = 0
	} else {
		deliveryFee = flatDeliveryFee
	}

	total = subtotal + deliveryFee
	return subtotal, deliveryFee, total
}
