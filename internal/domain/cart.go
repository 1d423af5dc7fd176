package domain

import (
	"fmt"
	"time"
)

// Cart limits.
const (
	MaxQuantityPerItem = 100
	MaxItemsPerCart    = 50
)

// LocalizedName holds a product name in each storefront language.
type LocalizedName struct {
	EN string `json:"en" bson:"en"`
	AR string `json:"ar,omitempty" bson:"ar,omitempty"`
}

// Default returns the English name, falling back to Arabic.
func (n LocalizedName) Default() string {
	if n.EN != "" {
		return n.EN
	}
	return n.AR
}

// CartLine is one product in the cart. UnitPrice is in minor currency units
// and is fixed when the line is first added.
type CartLine struct {
	ProductID string        `json:"product_id"`
	Name      LocalizedName `json:"name"`
	UnitPrice int64         `json:"unit_price"`
	Quantity  int           `json:"quantity"`
	ImageRef  string        `json:"image_ref,omitempty"`
}

// Subtotal returns UnitPrice × Quantity.
func (l CartLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// CartSnapshot is the ordered list of cart lines. Totals are always derived
// from the lines and never stored.
type CartSnapshot struct {
	Lines []CartLine `json:"lines"`
}

// TotalQuantity returns the sum of line quantities.
func (s CartSnapshot) TotalQuantity() int {
	total := 0
	for _, l := range s.Lines {
		total += l.Quantity
	}
	return total
}

// TotalPrice returns the sum of line subtotals in minor units.
func (s CartSnapshot) TotalPrice() int64 {
	var total int64
	for _, l := range s.Lines {
		total += l.Subtotal()
	}
	return total
}

// IsEmpty reports whether the snapshot holds nothing to buy.
func (s CartSnapshot) IsEmpty() bool {
	return s.TotalQuantity() == 0
}

// Find returns the index of the line for productID, or -1.
func (s CartSnapshot) Find(productID string) int {
	for i, l := range s.Lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can never alias the store's lines.
func (s CartSnapshot) Clone() CartSnapshot {
	if s.Lines == nil {
		return CartSnapshot{Lines: []CartLine{}}
	}
	lines := make([]CartLine, len(s.Lines))
	copy(lines, s.Lines)
	return CartSnapshot{Lines: lines}
}

// Validate checks the line invariants. It is used on data read back from
// the cache, which may have been written by an older build.
func (s CartSnapshot) Validate() error {
	if len(s.Lines) > MaxItemsPerCart {
		return fmt.Errorf("cart has %d lines, max %d", len(s.Lines), MaxItemsPerCart)
	}
	seen := make(map[string]struct{}, len(s.Lines))
	for i, l := range s.Lines {
		switch {
		case l.ProductID == "":
			return fmt.Errorf("line %d: product id is empty", i)
		case l.Quantity < 1 || l.Quantity > MaxQuantityPerItem:
			return fmt.Errorf("line %d: quantity %d out of range", i, l.Quantity)
		case l.UnitPrice < 0:
			return fmt.Errorf("line %d: negative unit price", i)
		}
		if _, dup := seen[l.ProductID]; dup {
			return fmt.Errorf("line %d: duplicate product %s", i, l.ProductID)
		}
		seen[l.ProductID] = struct{}{}
	}
	return nil
}

// CartBackup is the snapshot saved when checkout starts, read back once the
// shopper returns from the payment provider.
type CartBackup struct {
	Snapshot          CartSnapshot `json:"snapshot"`
	CheckoutSessionID string       `json:"checkout_session_id"`
	CreatedAt         time.Time    `json:"created_at"`
}
