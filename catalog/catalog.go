// Package catalog holds the static registry of purchasable items. A Catalog is
// populated once at construction and never changes afterwards.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"facette.io/natsort"
	"github.com/amp-labs/vending/money"
	"github.com/zeebo/xxh3"
)

var (
	// ErrUnknownItem is returned by Lookup when the id is not registered.
	ErrUnknownItem = errors.New("unknown item")
	// ErrEmptyCatalog is returned when a catalog has no items.
	ErrEmptyCatalog = errors.New("catalog has no items")
	// ErrItemIdRequired indicates that an item has no id.
	ErrItemIdRequired = errors.New("item id is required")
	// ErrItemNameRequired indicates that an item has no display name.
	ErrItemNameRequired = errors.New("item name is required")
	// ErrDuplicateItem indicates that two items share an id.
	ErrDuplicateItem = errors.New("duplicate item id")
	// ErrNonPositivePrice indicates that an item price is zero or negative.
	ErrNonPositivePrice = errors.New("item price must be greater than zero")
)

// Item is a purchasable product.
type Item struct {
	ID    string       `json:"id"    yaml:"id"`
	Name  string       `json:"name"  yaml:"name"`
	Price money.Amount `json:"price" yaml:"price"`
}

// String returns e.g. "Soda (1.50)".
func (i Item) String() string {
	return fmt.Sprintf("%s (%s)", i.Name, i.Price)
}

// Catalog is an immutable set of items keyed by id.
type Catalog struct {
	items       map[string]Item
	order       []string
	fingerprint uint64
}

// New builds a catalog from the given items. Every problem found is reported,
// joined into a single error.
func New(items ...Item) (*Catalog, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCatalog
	}

	var errs []error

	byID := make(map[string]Item, len(items))

	for idx, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			errs = append(errs, fmt.Errorf("item %d: %w", idx, ErrItemIdRequired))

			continue
		}

		if _, dup := byID[item.ID]; dup {
			errs = append(errs, fmt.Errorf("item %d: %w: %s", idx, ErrDuplicateItem, item.ID))

			continue
		}

		if strings.TrimSpace(item.Name) == "" {
			errs = append(errs, fmt.Errorf("item %s: %w", item.ID, ErrItemNameRequired))
		}

		if !item.Price.IsPositive() {
			errs = append(errs, fmt.Errorf("item %s: %w: %s", item.ID, ErrNonPositivePrice, item.Price))
		}

		byID[item.ID] = item
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	order := make([]string, 0, len(byID))
	for id := range byID {
		order = append(order, id)
	}

	natsort.Sort(order)

	cat := &Catalog{
		items: byID,
		order: order,
	}
	cat.fingerprint = cat.computeFingerprint()

	return cat, nil
}

// MustNew is like New but panics on error.
func MustNew(items ...Item) *Catalog {
	cat, err := New(items...)
	if err != nil {
		panic(fmt.Sprintf("failed to create catalog: %v", err))
	}

	return cat
}

// Lookup returns the item registered under id.
func (c *Catalog) Lookup(id string) (Item, error) {
	item, ok := c.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %q", ErrUnknownItem, id)
	}

	return item, nil
}

// Contains reports whether id is registered.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.items[id]

	return ok
}

// Items returns every item in natural id order (A2 before A10).
func (c *Catalog) Items() []Item {
	out := make([]Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}

	return out
}

// IDs returns every item id in natural order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)

	return out
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Fingerprint is a stable hash of the catalog contents. Two catalogs with the
// same items and prices have the same fingerprint regardless of input order.
func (c *Catalog) Fingerprint() uint64 {
	return c.fingerprint
}

func (c *Catalog) computeFingerprint() uint64 {
	var sb strings.Builder

	for _, id := range c.order {
		item := c.items[id]

		sb.WriteString(item.ID)
		sb.WriteByte(0)
		sb.WriteString(item.Name)
		sb.WriteByte(0)
		sb.WriteString(item.Price.String())
		sb.WriteByte('\n')
	}

	return xxh3.HashString(sb.String())
}
