package cart

// Item is a requested cart line as received from the buyer.
type Item struct {
	ProductID string
	Quantity  int
}

// Line is a validated, priced snapshot of a cart item taken at checkout
// time. Prices are frozen here; later catalog edits never touch them.
type Line struct {
	ProductID  string
	VendorID   string
	VendorName string
	Name       string
	UnitPrice  int64
	Quantity   int
	LineTotal  int64
}
