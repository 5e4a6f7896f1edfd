package domain

import "time"

// IntentAction is a cart mutation relevant to intent detection
type IntentAction string

const (
	ActionAdd    IntentAction = "add"
	ActionRemove IntentAction = "remove"
)

// Valid reports whether the action is known
func (a IntentAction) Valid() bool {
	return a == ActionAdd || a == ActionRemove
}

// IntentMode is the shopping mode inferred from the intent EMA
type IntentMode string

const (
	ModeQuality  IntentMode = "quality"
	ModeEconomy  IntentMode = "economy"
	ModeBalanced IntentMode = "balanced"
)

// IntentEvent is a single cart add/remove event
type IntentEvent struct {
	UserID    string       `json:"userId" binding:"required"`
	ProductID int64        `json:"productId" binding:"required"`
	Action    IntentAction `json:"action" binding:"required"`
	At        time.Time    `json:"at"`
}

// UserIntentState is the persisted per-user smoothed intent
type UserIntentState struct {
	UserID         string     `json:"userId"`
	EMA            float64    `json:"ema"` // 0 = economy, 1 = quality
	Mode           IntentMode `json:"mode"`
	LastModeSwitch time.Time  `json:"lastModeSwitch"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// IntentResult is the outcome of one intent computation
type IntentResult struct {
	UserID         string     `json:"userId"`
	Raw            float64    `json:"raw"`
	EMA            float64    `json:"ema"`
	Mode           IntentMode `json:"mode"`
	QualitySignals int        `json:"qualitySignals"`
	EconomySignals int        `json:"economySignals"`
	EventsUsed     int        `json:"eventsUsed"`
	ModeChanged    bool       `json:"modeChanged"`
	CooldownActive bool       `json:"cooldownActive"` // Advisory only
}
