package trip

import "github.com/shopspring/decimal"

// Totals are the per-collection price sums shown in the trip header.
type Totals struct {
	Flights  decimal.Decimal `json:"flights"`
	Stays    decimal.Decimal `json:"stays"`
	Expenses decimal.Decimal `json:"expenses"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals sums coerced prices of flights, stays and expenses.
// Activity costs are informational and not part of the totals.
func ComputeTotals(doc *Document) Totals {
	var t Totals
	if doc == nil {
		return Totals{Flights: decimal.Zero, Stays: decimal.Zero, Expenses: decimal.Zero, Total: decimal.Zero}
	}

	t.Flights = sumItems(doc.Flights)
	t.Stays = sumItems(doc.Stays)
	t.Expenses = decimal.Zero
	for _, x := range doc.Expenses {
		t.Expenses = t.Expenses.Add(x.Price.Decimal())
	}
	t.Total = t.Flights.Add(t.Stays).Add(t.Expenses)
	return t
}

func sumItems(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Price.Decimal())
	}
	return sum
}
