package model

// Intent is the classified purpose of a user message, driving routing.
// The set is closed: anything the classifier produces outside it collapses
// to IntentUnsupported.
type Intent string

const (
	IntentFAQ           Intent = "faq"
	IntentProductSearch Intent = "product_search"
	IntentBudgetCheck   Intent = "budget_check"
	IntentRefundRequest Intent = "refund_request"
	IntentStockCheck    Intent = "stock_check"
	IntentUnsupported   Intent = "unsupported"
)

// ParseIntent normalises a classifier label into a known intent.
func ParseIntent(v string) Intent {
	switch Intent(v) {
	case IntentFAQ, IntentProductSearch, IntentBudgetCheck, IntentRefundRequest, IntentStockCheck:
		return Intent(v)
	default:
		return IntentUnsupported
	}
}

// Transactional reports whether the intent routes to the action agent.
func (i Intent) Transactional() bool {
	switch i {
	case IntentProductSearch, IntentBudgetCheck, IntentRefundRequest, IntentStockCheck:
		return true
	default:
		return false
	}
}

// IntentScore is one classifier candidate with its confidence.
type IntentScore struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// IntentResult is the outcome of classifying a single user message.
// Candidates are ordered by descending confidence after tie-breaking.
type IntentResult struct {
	Intent     Intent
	Confidence float64
	Candidates []IntentScore
	Reasoning  string
}
