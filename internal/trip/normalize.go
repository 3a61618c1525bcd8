package trip

import (
	"github.com/oklog/ulid/v2"
)

// NewItemID returns a fresh item identifier.
func NewItemID() string {
	return ulid.Make().String()
}

// Normalize brings doc in line with the fixed configuration and returns it.
//
// It overwrites the fixed meta fields, defaults the currency, rebuilds Days so there is
// exactly one entry per date of the fixed range (activities are kept by date key), turns
// nil collections into empty ones and assigns ids to items lacking one. A nil doc yields
// a fresh empty document. Normalize is idempotent.
//
// If the fixed range is invalid the days are left as they are.
func Normalize(doc *Document, fixed Fixed) *Document {
	if doc == nil {
		doc = &Document{}
	}

	doc.Meta.Title = fixed.Title
	doc.Meta.StartDate = fixed.StartDate
	doc.Meta.EndDate = fixed.EndDate
	if doc.Meta.Currency == "" {
		doc.Meta.Currency = fixed.Currency
	}
	if doc.Meta.Currency == "" {
		doc.Meta.Currency = DefaultCurrency
	}

	if dates, err := DateRange(fixed.StartDate, fixed.EndDate); err == nil {
		byDate := make(map[string]Day, len(doc.Days))
		for _, day := range doc.Days {
			// Later duplicates win.
			byDate[day.Date] = day
		}
		days := make([]Day, 0, len(dates))
		for _, date := range dates {
			day, ok := byDate[date]
			if !ok {
				day = Day{Date: date}
			}
			days = append(days, day)
		}
		doc.Days = days
	}

	for i := range doc.Days {
		if doc.Days[i].Activities == nil {
			doc.Days[i].Activities = []Activity{}
		}
		for j := range doc.Days[i].Activities {
			ensureID(&doc.Days[i].Activities[j].Item)
		}
	}

	if doc.Flights == nil {
		doc.Flights = []Item{}
	}
	if doc.Stays == nil {
		doc.Stays = []Item{}
	}
	if doc.Expenses == nil {
		doc.Expenses = []Expense{}
	}
	for i := range doc.Flights {
		ensureID(&doc.Flights[i])
	}
	for i := range doc.Stays {
		ensureID(&doc.Stays[i])
	}
	for i := range doc.Expenses {
		ensureID(&doc.Expenses[i].Item)
	}

	return doc
}

func ensureID(item *Item) {
	if item.ID == "" {
		item.ID = NewItemID()
	}
}
