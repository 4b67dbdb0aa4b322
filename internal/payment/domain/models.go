package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// EventTypeDayCheckout is a completed primary-sale checkout for a free day.
	EventTypeDayCheckout = "day.checkout_completed"
	// EventTypeListingCheckout is a completed marketplace checkout for an
	// active resale listing.
	EventTypeListingCheckout = "listing.checkout_completed"
)

// EventRecord is the idempotency guard. The unique (provider, event id) pair
// is inserted first, inside the processing transaction, so a redelivered
// callback is absorbed before any effect can reapply.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event" json:"provider"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event" json:"provider_event_id"`
	Type            string         `gorm:"type:text;not null" json:"type"`
	Payload         datatypes.JSON `json:"payload"`
	ProcessedAt     *time.Time     `json:"processed_at"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// Reconciliation flags an acknowledged callback that produced no ownership
// change and needs manual follow-up.
type Reconciliation struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:text;not null" json:"provider"`
	ProviderEventID string         `gorm:"type:text;not null;index" json:"provider_event_id"`
	Reason          string         `gorm:"type:text;not null" json:"reason"`
	Payload         datatypes.JSON `json:"payload"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Reconciliation) TableName() string { return "payment_reconciliations" }

// CheckoutEvent is the provider-neutral form an adapter normalizes a
// callback into.
type CheckoutEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	Day             string
	Amount          int64
	Currency        string
	Email           string
	Name            string
	Content         claimdomain.Content
	ListingID       *snowflake.ID
	PaymentRef      string
	OccurredAt      time.Time
	RawPayload      []byte
}

type AdapterConfig struct {
	Config map[string]any
}

type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*CheckoutEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

type Repository interface {
	// InsertEventTx claims the (provider, event id) pair; a duplicate pair
	// returns ErrEventAlreadyProcessed with nothing written.
	InsertEventTx(ctx context.Context, tx *gorm.DB, record *EventRecord) error
	MarkProcessedTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error
	InsertReconciliationTx(ctx context.Context, tx *gorm.DB, item *Reconciliation) error
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
}

type Service interface {
	// ProcessEvent applies a normalized checkout event exactly once.
	ProcessEvent(ctx context.Context, event *CheckoutEvent) error
}

var (
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_provider_config")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)
