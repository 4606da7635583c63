package catalog

// Product is the read-only view of the catalog this core depends on.
// Price is the single canonical selling price, in paise.
type Product struct {
	ID               string
	VendorID         string
	VendorName       string
	Name             string
	Price            int64
	Quantity         int
	ReservedQuantity int
	Active           bool
}

// Available is the quantity not yet committed to unfulfilled orders.
func (p *Product) Available() int {
	return p.Quantity - p.ReservedQuantity
}
