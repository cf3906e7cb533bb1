package model

// Product is one grocery catalog entry.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	InStock     bool    `json:"in_stock"`
}

// Order is an external read-only order record, looked up during refund
// validation.
type Order struct {
	OrderID string  `json:"order_id"`
	Total   float64 `json:"total"`
	Status  string  `json:"status"`
}

const OrderStatusRefunded = "refunded"

// Denial reason codes for refund decisions.
const (
	RefundReasonOrderNotFound   = "order_not_found"
	RefundReasonAlreadyRefunded = "already_refunded"
	RefundReasonExceedsLimit    = "exceeds_limit"
)

// RefundDecision is the verdict computed for one refund request.
type RefundDecision struct {
	OrderID  string  `json:"order_id"`
	Approved bool    `json:"approved"`
	Reason   string  `json:"reason,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	RefundID string  `json:"refund_id,omitempty"`
}
