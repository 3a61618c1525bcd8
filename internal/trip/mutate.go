package trip

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	// ErrInvalidPath is returned when a field path does not name an editable field.
	ErrInvalidPath = errors.New("invalid field path")

	// ErrFixedField is returned when a path names a field baked into configuration.
	ErrFixedField = errors.New("field is fixed by configuration")

	// ErrItemNotFound is returned when no item has the given id.
	ErrItemNotFound = errors.New("item not found")

	// ErrInvalidValue is returned when a value fails validation.
	ErrInvalidValue = errors.New("invalid value")
)

// Collection names an item list of the document.
type Collection string

const (
	CollectionFlights    Collection = "flights"
	CollectionStays      Collection = "stays"
	CollectionExpenses   Collection = "expenses"
	CollectionActivities Collection = "activities"
)

// ParseCollection accepts a collection name, singular or plural.
func ParseCollection(s string) (Collection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flight", "flights":
		return CollectionFlights, nil
	case "stay", "stays":
		return CollectionStays, nil
	case "expense", "expenses":
		return CollectionExpenses, nil
	case "activity", "activities":
		return CollectionActivities, nil
	}
	return "", fmt.Errorf("%w: unknown collection %q", ErrInvalidPath, s)
}

// SetField assigns value to the field named by path.
//
// Paths:
//
//	meta.currency
//	flights.<id>.<field>        stays.<id>.<field>        expenses.<id>.<field>
//	days.<date>.activities.<id>.<field>
//
// Item fields are title, price, link, image and note; activities add time and expenses
// add category and day.
func SetField(doc *Document, path, value string) error {
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	switch parts[0] {
	case "meta":
		if len(parts) != 2 {
			return fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		return setMeta(doc, parts[1], value)

	case string(CollectionFlights), string(CollectionStays):
		if len(parts) != 3 {
			return fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		items := doc.Flights
		if parts[0] == string(CollectionStays) {
			items = doc.Stays
		}
		item := findItem(items, parts[1])
		if item == nil {
			return fmt.Errorf("%w: %s %s", ErrItemNotFound, parts[0], parts[1])
		}
		return setItemField(item, parts[2], value)

	case string(CollectionExpenses):
		if len(parts) != 3 {
			return fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		for i := range doc.Expenses {
			x := &doc.Expenses[i]
			if x.ID != parts[1] {
				continue
			}
			switch parts[2] {
			case "category":
				x.Category = value
				return nil
			case "day":
				date, err := ParseDayRef(value, Fixed{Title: doc.Meta.Title, StartDate: doc.Meta.StartDate, EndDate: doc.Meta.EndDate})
				if err != nil {
					return err
				}
				x.Day = date
				return nil
			}
			return setItemField(&x.Item, parts[2], value)
		}
		return fmt.Errorf("%w: expenses %s", ErrItemNotFound, parts[1])

	case "days":
		if len(parts) != 5 || parts[2] != string(CollectionActivities) {
			return fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		day := doc.Day(parts[1])
		if day == nil {
			return fmt.Errorf("%w: no day %s", ErrInvalidPath, parts[1])
		}
		for i := range day.Activities {
			a := &day.Activities[i]
			if a.ID != parts[3] {
				continue
			}
			if parts[4] == "time" {
				a.Time = value
				return nil
			}
			return setItemField(&a.Item, parts[4], value)
		}
		return fmt.Errorf("%w: activity %s on %s", ErrItemNotFound, parts[3], parts[1])
	}

	return fmt.Errorf("%w: %q", ErrInvalidPath, path)
}

func setMeta(doc *Document, field, value string) error {
	switch field {
	case "currency":
		unit, err := currency.ParseISO(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: currency %q: %v", ErrInvalidValue, value, err)
		}
		doc.Meta.Currency = unit.String()
		return nil
	case "title", "startDate", "endDate":
		return fmt.Errorf("%w: meta.%s", ErrFixedField, field)
	}
	return fmt.Errorf("%w: meta.%s", ErrInvalidPath, field)
}

func setItemField(item *Item, field, value string) error {
	switch field {
	case "title":
		item.Title = value
	case "price":
		price, err := ParsePrice(value)
		if err != nil {
			return err
		}
		item.Price = price
	case "link":
		item.Link = value
	case "image":
		item.Image = value
	case "note":
		item.Note = value
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidPath, field)
	}
	return nil
}

func findItem(items []Item, id string) *Item {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}

// AddItem appends a new item with the default title for its collection and returns its id.
// day is required for activities and names the day to add to.
func AddItem(doc *Document, coll Collection, day string) (string, error) {
	id := NewItemID()
	zero := NewPrice(decimal.Zero)

	switch coll {
	case CollectionFlights:
		doc.Flights = append(doc.Flights, Item{ID: id, Title: "Flight", Price: zero})
	case CollectionStays:
		doc.Stays = append(doc.Stays, Item{ID: id, Title: "Stay", Price: zero})
	case CollectionExpenses:
		doc.Expenses = append(doc.Expenses, Expense{Item: Item{ID: id, Title: "Expense", Price: zero}})
	case CollectionActivities:
		d := doc.Day(day)
		if d == nil {
			return "", fmt.Errorf("%w: no day %q", ErrInvalidValue, day)
		}
		d.Activities = append(d.Activities, Activity{Item: Item{ID: id, Title: "New activity", Price: zero}})
	default:
		return "", fmt.Errorf("%w: unknown collection %q", ErrInvalidPath, coll)
	}
	return id, nil
}

// DeleteItem removes the item with the given id. Activity ids are searched across all days.
func DeleteItem(doc *Document, coll Collection, id string) error {
	switch coll {
	case CollectionFlights:
		return deleteFrom(&doc.Flights, func(it Item) bool { return it.ID == id }, coll, id)
	case CollectionStays:
		return deleteFrom(&doc.Stays, func(it Item) bool { return it.ID == id }, coll, id)
	case CollectionExpenses:
		return deleteFrom(&doc.Expenses, func(x Expense) bool { return x.ID == id }, coll, id)
	case CollectionActivities:
		for i := range doc.Days {
			err := deleteFrom(&doc.Days[i].Activities, func(a Activity) bool { return a.ID == id }, coll, id)
			if err == nil {
				return nil
			}
		}
		return fmt.Errorf("%w: %s %s", ErrItemNotFound, coll, id)
	}
	return fmt.Errorf("%w: unknown collection %q", ErrInvalidPath, coll)
}

func deleteFrom[T any](list *[]T, match func(T) bool, coll Collection, id string) error {
	for i, v := range *list {
		if match(v) {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s", ErrItemNotFound, coll, id)
}
