package domain

import "strings"

// Item describes a product as offered to the cart by the UI.
type Item struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"originalPrice,omitempty"`
	Image         string   `json:"image"`
	Unit          string   `json:"unit"`
	Stock         int      `json:"stock"`
}

// Line is one product entry in the cart, keyed by product ID.
type Line struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"originalPrice,omitempty"`
	Quantity      int      `json:"quantity"`
	Image         string   `json:"image"`
	Unit          string   `json:"unit"`
	Stock         int      `json:"stock"`

	// OutOfStock is transient: it is set by MarkOutOfStock and never persisted.
	OutOfStock bool `json:"isOutOfStock,omitempty"`
}

// NewLine builds a line for item with the requested quantity clamped to the item's stock.
// The second return value reports whether clamping occurred.
func NewLine(item Item, quantity int) (Line, bool) {
	stock := normalizeStock(item.Stock)
	qty, clamped := Clamp(quantity, stock)
	return Line{
		ID:            item.ID,
		Name:          item.Name,
		Price:         item.Price,
		OriginalPrice: item.OriginalPrice,
		Quantity:      qty,
		Image:         item.Image,
		Unit:          item.Unit,
		Stock:         stock,
	}, clamped
}

// Clamp reduces quantity to stock when it exceeds it.
func Clamp(quantity, stock int) (int, bool) {
	stock = normalizeStock(stock)
	if quantity > stock {
		return stock, true
	}
	return quantity, false
}

// normalizeStock treats negative stock as none available.
func normalizeStock(stock int) int {
	if stock < 0 {
		return 0
	}
	return stock
}

// MatchesName reports whether the line's name contains, or is contained by, name,
// ignoring case. Empty names never match.
func (l Line) MatchesName(name string) bool {
	a := strings.ToLower(strings.TrimSpace(l.Name))
	b := strings.ToLower(strings.TrimSpace(name))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Lines is the ordered content of one cart.
type Lines []Line

// TotalItems returns the sum of quantities across all lines.
func (ls Lines) TotalItems() int {
	var total int
	for _, l := range ls {
		total += l.Quantity
	}
	return total
}

// IndexOf returns the index of the line with the given ID, or -1.
func (ls Lines) IndexOf(id string) int {
	for i := range ls {
		if ls[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the lines.
func (ls Lines) Clone() Lines {
	if ls == nil {
		return Lines{}
	}
	out := make(Lines, len(ls))
	for i, l := range ls {
		if l.OriginalPrice != nil {
			p := *l.OriginalPrice
			l.OriginalPrice = &p
		}
		out[i] = l
	}
	return out
}
