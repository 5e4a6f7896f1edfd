package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/cartwise/backend/internal/domain"
)

// OrderStore keeps completed orders
type OrderStore struct {
	mu     sync.RWMutex
	orders []domain.Order
}

// NewOrderStore creates an order store, optionally seeded with history
func NewOrderStore(seed ...domain.Order) *OrderStore {
	s := &OrderStore{}
	for _, o := range seed {
		s.orders = append(s.orders, cloneOrder(o))
	}
	return s
}

// SaveOrder implements domain.PurchaseHistoryRepository
func (s *OrderStore) SaveOrder(ctx context.Context, order domain.Order) error {
	if order.UserID == "" {
		return domain.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, cloneOrder(order))
	return nil
}

// OrdersByUser implements domain.PurchaseHistoryRepository
func (s *OrderStore) OrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	s.mu.RLock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// AllOrders implements domain.PurchaseHistoryRepository
func (s *OrderStore) AllOrders(ctx context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = cloneOrder(o)
	}
	return out, nil
}

// Len returns the number of stored orders
func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}
