// Package trip provides the shared trip document and the pure operations over it.
//
// Overview
//
// A trip is stored as one JSON document:
//
//	{
//	  "meta":     {"title", "currency", "startDate", "endDate", "versionTimestamp", "lastWriterId"},
//	  "days":     [{"date", "activities": [...]}],   one per date of the fixed range
//	  "flights":  [{"id", "title", "price", "link", "image", "note"}],
//	  "stays":    [...],
//	  "expenses": [{..., "category", "day"}]
//	}
//
// Title and the date range come from configuration (Fixed) and are never trusted from the
// remote copy. Normalize enforces that, rebuilds the days list against the range and fills
// in defaults. It is run before every save and after every load.
//
// Prices
//
// Other clients may have written prices as numbers, numeric strings or null. Price keeps the
// raw value and coerces on read, so totals treat anything non-numeric as 0 without rewriting
// fields nobody touched.
//
// Mutation
//
// SetField, AddItem and DeleteItem are the model half of the editing capability handed to
// UI layers. They address items by id; Normalize assigns ids to items that lack one.
//
// Nothing in this package performs I/O except ReadFile and WriteFile.
package trip
