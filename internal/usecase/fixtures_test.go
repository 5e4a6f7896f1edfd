package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cartwise/backend/internal/domain"
)

// mapEmbedder returns a fixed vector per cleaned product title
type mapEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	err      error

	mu    sync.Mutex
	calls int
}

func (e *mapEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *mapEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		title := strings.SplitN(text, " | ", 2)[0]
		if v, ok := e.vectors[title]; ok {
			out[i] = v
		} else {
			out[i] = e.fallback
		}
	}
	return out, nil
}

type fixtureProduct struct {
	raw    domain.RawProduct
	vector []float32
}

var fixtureProducts = []fixtureProduct{
	{domain.RawProduct{Title: "Organic Whole Milk", Brand: "Horizon", Category: "Dairy", Subcategory: "Milk", Price: "$6.00", Size: "1 gal",
		Nutrition: map[string]float64{"protein": 3.3, "sugar": 4.8, "saturated_fat": 2, "sodium": 40}}, []float32{1, 0.05, 0, 0}},
	{domain.RawProduct{Title: "Whole Milk", Brand: "Dairy Farms", Category: "Dairy", Subcategory: "Milk", Price: "4.00", Size: "1 gal",
		Nutrition: map[string]float64{"protein": 3.2, "sugar": 4.9, "saturated_fat": 2, "sodium": 42}}, []float32{0.98, 0.1, 0, 0}},
	{domain.RawProduct{Title: "Great Value Whole Milk", Brand: "Great Value", Category: "Dairy", Subcategory: "Milk", Price: 3.0, Size: "1 gal"},
		[]float32{0.95, 0.15, 0, 0}},
	{domain.RawProduct{Title: "Lowfat Milk", Brand: "Dairy Farms", Category: "Dairy", Subcategory: "Milk", Price: "$3.50", Size: "64 fl oz"},
		[]float32{0.9, 0.2, 0.1, 0}},
	{domain.RawProduct{Title: "Aged Cheddar Cheese", Category: "Dairy Products", Subcategory: "Cheese", Price: "$8.00", Size: "8 oz"},
		[]float32{0.1, 1, 0, 0}},
	{domain.RawProduct{Title: "Mild Cheddar Cheese", Category: "Dairy Products", Subcategory: "Cheese", Price: "$5.00", Size: "8 oz"},
		[]float32{0.12, 0.98, 0, 0}},
	{domain.RawProduct{Title: "Greek Yogurt", Category: "Dairy", Subcategory: "Yogurt", Price: "$5.50", Size: "32 oz"},
		[]float32{0.2, 0.9, 0, 0}},
	{domain.RawProduct{Title: "Kettle Potato Chips", Category: "Snacks", Subcategory: "Chips", Price: "$4.50", Size: "8 oz"},
		[]float32{0, 0, 1, 0}},
	{domain.RawProduct{Title: "Store Brand Potato Chips", Category: "Snacks", Subcategory: "Chips", Price: "$2.00", Size: "10 oz"},
		[]float32{0, 0, 0.97, 0.2}},
	{domain.RawProduct{Title: "Bananas", Category: "Produce", Subcategory: "Fruit", Price: "$1.00", Size: "6 ct"},
		[]float32{0, 0, 0, 1}},
	{domain.RawProduct{Title: "Sparkling Water", Category: "Beverages", Subcategory: "Water", Price: "$2.50", Size: "1 l"},
		[]float32{0, 0, 0.1, 1}},
}

func fixtureRaws() []domain.RawProduct {
	raws := make([]domain.RawProduct, len(fixtureProducts))
	for i, p := range fixtureProducts {
		raws[i] = p.raw
	}
	return raws
}

func fixtureEmbedder() *mapEmbedder {
	text := NewTextPreprocessor(false)
	vectors := make(map[string][]float32, len(fixtureProducts))
	for _, p := range fixtureProducts {
		vectors[text.CleanTitle(p.raw.Title)] = p.vector
	}
	return &mapEmbedder{vectors: vectors, fallback: []float32{0.5, 0.5, 0.5, 0.5}}
}

func newFixtureIndex(t *testing.T) *CatalogIndex {
	t.Helper()
	idx, err := BuildCatalogIndex(context.Background(), fixtureRaws(),
		[]NamedEmbedder{{Name: "fixture", Embedder: fixtureEmbedder()}}, nil, CatalogConfig{})
	if err != nil {
		t.Fatalf("BuildCatalogIndex() error = %v", err)
	}
	return idx
}

func productByTitle(t *testing.T, idx *CatalogIndex, title string) domain.Product {
	t.Helper()
	for _, p := range idx.All() {
		if p.Title == title {
			return p
		}
	}
	t.Fatalf("product %q not in fixture catalog", title)
	return domain.Product{}
}

// memoryEvents is an in-test IntentEventRepository
type memoryEvents struct {
	mu     sync.Mutex
	events []domain.IntentEvent
	err    error
}

func (r *memoryEvents) Append(_ context.Context, event domain.IntentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *memoryEvents) Recent(_ context.Context, userID string, since time.Time, limit int) ([]domain.IntentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []domain.IntentEvent
	for _, ev := range r.events {
		if ev.UserID == userID && !ev.At.Before(since) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].At.After(out[b].At) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memoryStates is an in-test IntentStateStore
type memoryStates struct {
	mu     sync.Mutex
	states map[string]domain.UserIntentState
	getErr error
	saves  int
}

func newMemoryStates() *memoryStates {
	return &memoryStates{states: make(map[string]domain.UserIntentState)}
}

func (s *memoryStates) Get(_ context.Context, userID string) (*domain.UserIntentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	state, ok := s.states[userID]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	return &state, nil
}

func (s *memoryStates) Save(_ context.Context, state *domain.UserIntentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.states[state.UserID] = *state
	return nil
}

func (s *memoryStates) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

// memoryOrders is an in-test PurchaseHistoryRepository
type memoryOrders struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
}

func (r *memoryOrders) SaveOrder(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.orders = append(r.orders, order)
	return nil
}

func (r *memoryOrders) OrdersByUser(_ context.Context, userID string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for i := len(r.orders) - 1; i >= 0; i-- {
		if r.orders[i].UserID == userID {
			out = append(out, r.orders[i])
		}
	}
	return out, nil
}

func (r *memoryOrders) AllOrders(_ context.Context) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return append([]domain.Order(nil), r.orders...), nil
}

// memoryInteractions is an in-test InteractionRepository
type memoryInteractions struct {
	mu    sync.Mutex
	items []domain.RecommendationInteraction
}

func (r *memoryInteractions) Append(_ context.Context, interaction domain.RecommendationInteraction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, interaction)
	return nil
}

func (r *memoryInteractions) ListByUser(_ context.Context, userID string) ([]domain.RecommendationInteraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.RecommendationInteraction
	for _, it := range r.items {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out, nil
}

// stubRanker is a RankingModel returning a fixed feature as the score
type stubRanker struct {
	feature  int
	features int
	err      error
	calls    int
}

func (s *stubRanker) Predict(features []float64) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return features[s.feature], nil
}

func (s *stubRanker) NumFeatures() int {
	return s.features
}

var errStub = errors.New("stub failure")
