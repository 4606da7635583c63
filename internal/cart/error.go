package cart

import (
	"fmt"
	"strings"
)

type ProblemReason string

const (
	ReasonNotFound          ProblemReason = "product_not_found"
	ReasonUnavailable       ProblemReason = "product_unavailable"
	ReasonInsufficientStock ProblemReason = "insufficient_stock"
	ReasonInvalidQuantity   ProblemReason = "invalid_quantity"
	ReasonDuplicateProduct  ProblemReason = "duplicate_product"
)

// ItemProblem describes one failing cart line.
type ItemProblem struct {
	ProductID string        `json:"productId"`
	Reason    ProblemReason `json:"reason"`
	Requested int           `json:"requested,omitempty"`
	Available int           `json:"available,omitempty"`
}

// ValidationError carries every failing line so the caller can show all
// problems at once instead of fixing them one request at a time.
type ValidationError struct {
	Problems []ItemProblem
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("cart validation failed:")
	for _, p := range e.Problems {
		fmt.Fprintf(&sb, " %s=%s", p.ProductID, p.Reason)
	}
	return sb.String()
}
