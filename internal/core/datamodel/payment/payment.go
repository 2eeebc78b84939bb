package payment

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Payment states. These are the host platform's states; the provider moves
// payments between them but does not own the vocabulary.
const (
	StateCreated   = "created"
	StatePending   = "pending"
	StateConfirmed = "confirmed"
	StateFailed    = "failed"
	StateCanceled  = "canceled"
	StateRefunded  = "refunded"
)

// Refund states.
const (
	RefundStateRequested = "requested"
	RefundStateDone      = "done"
	RefundStateFailed    = "failed"
)

// Payment is one attempt to collect money for an order. Info holds the raw
// gateway response snapshot; it is only ever replaced wholesale together
// with a state transition, or redacted by the shredder.
type Payment struct {
	ID          int64           `gorm:"primaryKey"`
	EventSlug   string          `gorm:"column:event_slug;not null"`
	OrderCode   string          `gorm:"column:order_code;not null;index"`
	OrderSecret string          `gorm:"column:order_secret;not null"`
	OrderLocale string          `gorm:"column:order_locale;default:en"`
	LocalID     int64           `gorm:"column:local_id;not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(13,3);not null"`
	Currency    string          `gorm:"column:currency;not null"`
	Method      string          `gorm:"column:method;not null"`
	State       string          `gorm:"column:state;default:created"`
	Info        json.RawMessage `gorm:"column:info;type:jsonb"`
	CreatedAt   time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;default:now()"`
}

// InfoData decodes the stored snapshot, returning nil when none exists.
func (p *Payment) InfoData() map[string]interface{} {
	if len(p.Info) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(p.Info, &m); err != nil {
		return nil
	}
	return m
}

// IsTerminal reports whether callbacks may still move this payment.
func (p *Payment) IsTerminal() bool {
	switch p.State {
	case StateConfirmed, StateFailed, StateCanceled, StateRefunded:
		return true
	}
	return false
}

// Refund is a request to return funds for a captured payment.
type Refund struct {
	ID        int64           `gorm:"primaryKey"`
	PaymentID int64           `gorm:"column:payment_id;not null;index"`
	LocalID   int64           `gorm:"column:local_id;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(13,3);not null"`
	Currency  string          `gorm:"column:currency;not null"`
	State     string          `gorm:"column:state;default:requested"`
	Info      json.RawMessage `gorm:"column:info;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time       `gorm:"column:updated_at;default:now()"`
}

// ActionLog is one audit trail entry, tagged by the gateway event kind that
// produced it.
type ActionLog struct {
	ID        int64           `gorm:"primaryKey"`
	PaymentID int64           `gorm:"column:payment_id;not null;index"`
	Action    string          `gorm:"column:action;not null"`
	Data      json.RawMessage `gorm:"column:data;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;default:now()"`
}
