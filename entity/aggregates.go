package entity

// Aggregates holds the derived counters shown on a list header.
type Aggregates struct {
	TotalItems   int
	CheckedItems int
	TotalPrice   float64
}

// ComputeAggregates derives the list counters from its items. Price-less
// items contribute nothing to TotalPrice; priced items contribute
// price * quantity, matching the server's query.
func ComputeAggregates(items []Item) Aggregates {
	var agg Aggregates
	for _, it := range items {
		agg.TotalItems++
		if it.Checked {
			agg.CheckedItems++
		}
		if it.Price != nil {
			agg.TotalPrice += *it.Price * float64(it.Quantity)
		}
	}
	return agg
}

// Apply writes the aggregates onto a list record.
func (a Aggregates) Apply(l *ListWithCounts) {
	l.TotalItems = a.TotalItems
	l.CheckedItems = a.CheckedItems
	l.TotalPrice = a.TotalPrice
}
