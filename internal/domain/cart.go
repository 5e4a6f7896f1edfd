package domain

import (
	"sort"
	"time"
)

// CartItem is a product in a shopping cart
type CartItem struct {
	ProductID     int64     `json:"productId" binding:"required"`
	Quantity      int       `json:"quantity" binding:"min=0"`
	PriceSnapshot float64   `json:"priceSnapshot"` // Price at the time the item was added
	AddedAt       time.Time `json:"addedAt"`
}

// LineTotal returns snapshot price times quantity
func (i CartItem) LineTotal() float64 {
	qty := i.Quantity
	if qty <= 0 {
		qty = 1
	}
	return i.PriceSnapshot * float64(qty)
}

// Cart is a user's cart together with the budget they set
type Cart struct {
	UserID string     `json:"userId" binding:"required"`
	Budget float64    `json:"budget" binding:"gt=0"`
	Items  []CartItem `json:"items"`
}

// Total returns the sum of all line totals
func (c Cart) Total() float64 {
	total := 0.0
	for _, item := range c.Items {
		total += item.LineTotal()
	}
	return total
}

// Overage returns how much the cart is over budget (0 when within budget)
func (c Cart) Overage() float64 {
	over := c.Total() - c.Budget
	if over < 0 {
		return 0
	}
	return over
}

// MostRecentFirst returns the cart items ordered by AddedAt, newest first.
// Items with equal timestamps keep their cart order reversed, so the last
// appended item still comes first.
func (c Cart) MostRecentFirst() []CartItem {
	items := make([]CartItem, len(c.Items))
	for i := range c.Items {
		items[len(c.Items)-1-i] = c.Items[i]
	}
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].AddedAt.After(items[b].AddedAt)
	})
	return items
}

// Order is a completed checkout
type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"createdAt"`
}

// OrderItem is a purchased line
type OrderItem struct {
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}
