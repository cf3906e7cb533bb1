package eval

// DefaultCases is the built-in smoke set used when no cases file is
// configured, so `-mode eval` and the evaluate endpoint stay usable out of
// the box.
func DefaultCases() []Case {
	return []Case{
		{
			ID:               "default_delivery_hours",
			Question:         "When do you deliver?",
			ExpectedKeywords: []string{"8am", "10pm"},
			ExpectedIntent:   "faq",
		},
		{
			ID:               "default_budget",
			Question:         "Can I buy milk and bread with $10?",
			ExpectedKeywords: []string{"milk", "bread"},
			ExpectedIntent:   "budget_check",
		},
		{
			ID:               "default_refund_missing",
			Question:         "Please refund order ORD999.",
			ExpectedKeywords: []string{"ORD999"},
			ExpectedIntent:   "refund_request",
		},
		{
			ID:               "default_unsupported",
			Question:         "Tell me a joke about cats.",
			ExpectedKeywords: []string{"help"},
			ExpectedIntent:   "unsupported",
		},
	}
}
