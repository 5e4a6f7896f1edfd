package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
)

// RetrainTrigger starts a background retrain
type RetrainTrigger interface {
	Trigger() error
}

// CheckoutService turns carts into orders and kicks off retraining
type CheckoutService struct {
	catalog   *CatalogHolder
	history   domain.PurchaseHistoryRepository
	retrainer RetrainTrigger
	now       func() time.Time
}

// NewCheckoutService creates a checkout service. retrainer may be nil.
func NewCheckoutService(catalog *CatalogHolder, history domain.PurchaseHistoryRepository, retrainer RetrainTrigger) *CheckoutService {
	return &CheckoutService{
		catalog:   catalog,
		history:   history,
		retrainer: retrainer,
		now:       time.Now,
	}
}

// Checkout persists the cart as an order and triggers a retrain
func (s *CheckoutService) Checkout(ctx context.Context, cart domain.Cart) (*domain.Order, error) {
	if strings.TrimSpace(cart.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	if len(cart.Items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", domain.ErrInvalidRequest)
	}

	var idx *CatalogIndex
	if s.catalog != nil {
		idx = s.catalog.Current()
	}

	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    cart.UserID,
		CreatedAt: s.now().UTC(),
		Items:     make([]domain.OrderItem, 0, len(cart.Items)),
	}

	for _, item := range cart.Items {
		price := item.PriceSnapshot
		if idx != nil {
			product, ok := idx.Get(item.ProductID)
			if !ok {
				return nil, fmt.Errorf("%w: %d", domain.ErrProductNotFound, item.ProductID)
			}
			if price <= 0 {
				price = product.Price
			}
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		order.Items = append(order.Items, domain.OrderItem{ProductID: item.ProductID, Quantity: qty, Price: price})
	}

	if err := s.history.SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("saving order: %w", err)
	}

	logging.Info().Str("user_id", order.UserID).Str("order_id", order.ID).Int("items", len(order.Items)).
		Msg("[CHECKOUT] order saved")

	if s.retrainer != nil {
		if err := s.retrainer.Trigger(); err != nil && !errors.Is(err, domain.ErrRetrainInProgress) {
			logging.Warn().Err(err).Msg("[CHECKOUT] failed to trigger retrain")
		}
	}

	return &order, nil
}
