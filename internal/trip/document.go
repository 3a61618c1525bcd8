package trip

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultCurrency is used when neither the document nor the configuration names one.
const DefaultCurrency = "USD"

// DateLayout is the on-disk format of every date in the document.
const DateLayout = "2006-01-02"

// Fixed holds the document fields that come from configuration and are never
// trusted from the remote copy.
type Fixed struct {
	Title     string
	StartDate string
	EndDate   string

	// Currency is only a default; the document's own currency wins when set.
	Currency string
}

// Validate checks that the fixed range is well formed.
func (f Fixed) Validate() error {
	if f.Title == "" {
		return fmt.Errorf("title is required")
	}
	start, err := time.Parse(DateLayout, f.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start date %q: %w", f.StartDate, err)
	}
	end, err := time.Parse(DateLayout, f.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end date %q: %w", f.EndDate, err)
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s is before start date %s", f.EndDate, f.StartDate)
	}
	return nil
}

// Document is the root aggregate persisted as a single JSON value in the remote store.
// JSON names follow the documents written by the browser client.
type Document struct {
	Meta     Meta      `json:"meta"`
	Days     []Day     `json:"days"`
	Flights  []Item    `json:"flights"`
	Stays    []Item    `json:"stays"`
	Expenses []Expense `json:"expenses"`
}

// Meta carries the document header.
type Meta struct {
	Title     string `json:"title"`
	Currency  string `json:"currency"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`

	// VersionTimestamp is the logical write time (unix milliseconds) used by the
	// registry backend as its version token.
	VersionTimestamp int64 `json:"versionTimestamp,omitempty"`

	// LastWriterID is the opaque client id of the last successful writer.
	LastWriterID string `json:"lastWriterId,omitempty"`
}

// Day is one calendar date of the trip. Date is the key within Document.Days.
type Day struct {
	Date       string     `json:"date"`
	Activities []Activity `json:"activities"`
}

// Item is a free-form priced entry (flight, stay, and the base of activities and expenses).
type Item struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Price Price  `json:"price"`
	Link  string `json:"link"`
	Image string `json:"image"`
	Note  string `json:"note"`
}

// Activity is an Item scheduled on a day.
type Activity struct {
	Item
	Time string `json:"time"`
}

// Expense is an Item with a category and an optional day reference.
type Expense struct {
	Item
	Category string `json:"category"`
	Day      string `json:"day"`
}

// Default returns the empty document used when nothing can be loaded.
func Default(fixed Fixed) *Document {
	doc := &Document{
		Meta: Meta{
			Title:     fixed.Title,
			Currency:  fixed.Currency,
			StartDate: fixed.StartDate,
			EndDate:   fixed.EndDate,
		},
	}
	return Normalize(doc, fixed)
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		// Every field is plain data; marshaling cannot fail.
		panic(fmt.Sprintf("trip: clone marshal: %v", err))
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("trip: clone unmarshal: %v", err))
	}
	return &out
}

// Day returns the day with the given date, or nil.
func (d *Document) Day(date string) *Day {
	for i := range d.Days {
		if d.Days[i].Date == date {
			return &d.Days[i]
		}
	}
	return nil
}

// Validate checks structural invariants of a normalized document.
func (d *Document) Validate() error {
	if d.Meta.Title == "" {
		return fmt.Errorf("meta.title is required")
	}
	if d.Meta.Currency == "" {
		return fmt.Errorf("meta.currency is required")
	}
	seen := make(map[string]bool, len(d.Days))
	prev := ""
	for _, day := range d.Days {
		if _, err := time.Parse(DateLayout, day.Date); err != nil {
			return fmt.Errorf("invalid day date %q", day.Date)
		}
		if seen[day.Date] {
			return fmt.Errorf("duplicate day %s", day.Date)
		}
		if prev != "" && day.Date < prev {
			return fmt.Errorf("days not sorted: %s after %s", day.Date, prev)
		}
		seen[day.Date] = true
		prev = day.Date
	}
	return nil
}
