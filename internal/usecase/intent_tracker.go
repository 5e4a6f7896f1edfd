package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
	"github.com/cartwise/backend/internal/metrics"
)

// neutralIntent is the EMA of a user with no history
const neutralIntent = 0.5

// Title keywords that mark a product as premium or value-oriented.
// Phrases are matched against tokenized titles, so hyphens become spaces.
var (
	premiumKeywords = []string{
		"organic", "premium", "artisan", "gourmet", "grass fed", "wild caught",
		"free range", "imported", "reserve", "craft", "heirloom", "extra virgin",
		"pasture raised", "handcrafted", "small batch", "luxury",
	}
	valueKeywords = []string{
		"value", "budget", "basic", "basics", "saver", "economy", "great value",
		"store brand", "bulk", "everyday", "essentials", "discount", "bargain",
	}
)

// ProductTier is the price tier of a product within its subcategory
type ProductTier int

const (
	TierNeutral ProductTier = iota
	TierQuality
	TierEconomy
)

// String returns the tier name
func (t ProductTier) String() string {
	switch t {
	case TierQuality:
		return "quality"
	case TierEconomy:
		return "economy"
	default:
		return "neutral"
	}
}

// IntentConfig holds configuration for intent tracking
type IntentConfig struct {
	Window           time.Duration // Events older than this are ignored
	MaxEvents        int           // Most recent events considered
	Alpha            float64       // Weight of the new raw signal in the EMA
	QualityThreshold float64       // EMA at or above this is quality mode
	EconomyThreshold float64       // EMA at or below this is economy mode
	Cooldown         time.Duration // Advisory minimum time between mode switches
}

func (c *IntentConfig) applyDefaults() {
	if c.Window <= 0 {
		c.Window = 10 * time.Minute
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = 10
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		c.Alpha = 0.3
	}
	if c.QualityThreshold <= 0 || c.QualityThreshold > 1 {
		c.QualityThreshold = 0.6
	}
	if c.EconomyThreshold <= 0 || c.EconomyThreshold >= c.QualityThreshold {
		c.EconomyThreshold = 0.4
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 45 * time.Second
	}
}

// IntentTracker infers a smoothed quality-vs-economy intent from recent
// cart add/remove events
type IntentTracker struct {
	events  domain.IntentEventRepository
	states  domain.IntentStateStore
	catalog *CatalogHolder
	config  IntentConfig
	now     func() time.Time
}

// NewIntentTracker creates an intent tracker
func NewIntentTracker(
	events domain.IntentEventRepository,
	states domain.IntentStateStore,
	catalog *CatalogHolder,
	config IntentConfig,
) *IntentTracker {
	config.applyDefaults()
	return &IntentTracker{
		events:  events,
		states:  states,
		catalog: catalog,
		config:  config,
		now:     time.Now,
	}
}

// Record validates and appends a cart event. A zero or future timestamp is
// set to now.
func (t *IntentTracker) Record(ctx context.Context, event domain.IntentEvent) error {
	if strings.TrimSpace(event.UserID) == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	if !event.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidRequest, event.Action)
	}
	if event.ProductID == 0 {
		return fmt.Errorf("%w: product id is required", domain.ErrInvalidRequest)
	}
	if now := t.now(); event.At.IsZero() || event.At.After(now) {
		event.At = now
	}

	if err := t.events.Append(ctx, event); err != nil {
		return fmt.Errorf("recording intent event: %w", err)
	}
	return nil
}

// Compute folds the user's recent events into the smoothed intent, persists
// the new state and returns it
func (t *IntentTracker) Compute(ctx context.Context, userID string, now time.Time) (domain.IntentResult, error) {
	if now.IsZero() {
		now = t.now()
	}

	prev := t.loadState(ctx, userID)

	events, err := t.events.Recent(ctx, userID, now.Add(-t.config.Window), t.config.MaxEvents)
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("loading intent events: %w", err)
	}
	events = slices.DeleteFunc(events, func(e domain.IntentEvent) bool { return e.At.After(now) })

	quality, economy := t.countSignals(events)

	raw := neutralIntent
	if quality+economy > 0 {
		raw = float64(quality) / float64(quality+economy)
	}

	ema := t.config.Alpha*raw + (1-t.config.Alpha)*prev.EMA
	ema = math.Max(0, math.Min(1, ema))
	mode := t.modeFor(ema)

	result := domain.IntentResult{
		UserID:         userID,
		Raw:            raw,
		EMA:            ema,
		Mode:           mode,
		QualitySignals: quality,
		EconomySignals: economy,
		EventsUsed:     len(events),
	}

	next := &domain.UserIntentState{
		UserID:         userID,
		EMA:            ema,
		Mode:           mode,
		LastModeSwitch: prev.LastModeSwitch,
		UpdatedAt:      now,
	}

	if prevMode := prev.Mode; prevMode != "" && prevMode != mode {
		result.ModeChanged = true
		// Cooldown is reported only; the new mode is still returned and stored
		if !prev.LastModeSwitch.IsZero() && now.Sub(prev.LastModeSwitch) < t.config.Cooldown {
			result.CooldownActive = true
		}
		next.LastModeSwitch = now
	}

	if err := t.states.Save(ctx, next); err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("[INTENT] failed to persist intent state")
	}

	metrics.IntentComputations.WithLabelValues(string(mode)).Inc()

	logging.Debug().
		Str("user_id", userID).
		Int("events", len(events)).
		Int("quality", quality).
		Int("economy", economy).
		Float64("raw", raw).
		Float64("ema", ema).
		Str("mode", string(mode)).
		Bool("cooldown", result.CooldownActive).
		Msg("[INTENT] computed")

	return result, nil
}

// Current returns the stored intent state without folding in new events
func (t *IntentTracker) Current(ctx context.Context, userID string) *domain.UserIntentState {
	return t.loadState(ctx, userID)
}

// Reset drops the user's smoothed state so the next computation starts from
// neutral. Recorded events are kept.
func (t *IntentTracker) Reset(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	if err := t.states.Delete(ctx, userID); err != nil {
		return fmt.Errorf("resetting intent state: %w", err)
	}
	logging.Info().Str("user_id", userID).Msg("[INTENT] state reset")
	return nil
}

// Tier classifies a product. Title keywords are checked first (premium
// before value); subcategory price quartiles apply only when no keyword
// matched.
func (t *IntentTracker) Tier(idx *CatalogIndex, product domain.Product) ProductTier {
	title := strings.ToLower(product.Title + " " + product.Brand)
	if containsAnyPhrase(title, premiumKeywords) {
		return TierQuality
	}
	if containsAnyPhrase(title, valueKeywords) {
		return TierEconomy
	}

	if idx == nil {
		return TierNeutral
	}
	q1, q3, ok := idx.PriceQuartiles(product.Subcategory)
	if !ok {
		return TierNeutral
	}
	switch {
	case product.Price >= q3:
		return TierQuality
	case product.Price <= q1:
		return TierEconomy
	default:
		return TierNeutral
	}
}

func (t *IntentTracker) countSignals(events []domain.IntentEvent) (quality, economy int) {
	var idx *CatalogIndex
	if t.catalog != nil {
		idx = t.catalog.Current()
	}
	if idx == nil {
		return 0, 0
	}

	for _, ev := range events {
		product, ok := idx.Get(ev.ProductID)
		if !ok {
			continue
		}

		tier := t.Tier(idx, product)
		switch {
		case ev.Action == domain.ActionAdd && tier == TierQuality:
			quality++
		case ev.Action == domain.ActionAdd && tier == TierEconomy:
			economy++
		case ev.Action == domain.ActionRemove && tier == TierEconomy:
			quality++
		case ev.Action == domain.ActionRemove && tier == TierQuality:
			economy++
		}
	}
	return quality, economy
}

func (t *IntentTracker) modeFor(ema float64) domain.IntentMode {
	switch {
	case ema >= t.config.QualityThreshold:
		return domain.ModeQuality
	case ema <= t.config.EconomyThreshold:
		return domain.ModeEconomy
	default:
		return domain.ModeBalanced
	}
}

// loadState returns the stored state or a neutral default. Store failures
// degrade to the default.
func (t *IntentTracker) loadState(ctx context.Context, userID string) *domain.UserIntentState {
	state, err := t.states.Get(ctx, userID)
	if err != nil || state == nil {
		if err != nil && !errors.Is(err, domain.ErrStateNotFound) {
			logging.Warn().Err(err).Str("user_id", userID).Msg("[INTENT] state store unavailable, using neutral intent")
		}
		return &domain.UserIntentState{UserID: userID, EMA: neutralIntent, Mode: domain.ModeBalanced}
	}
	return state
}
