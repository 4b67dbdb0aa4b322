package domain

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Claim records symbolic ownership of one calendar day. Exactly one claim
// exists per day; ownership moves, rows are never deleted.
type Claim struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Day         string       `gorm:"type:text;not null;uniqueIndex:ux_claims_day" json:"day"`
	OwnerID     snowflake.ID `gorm:"not null;index" json:"owner_id"`
	PricePaid   int64        `gorm:"not null" json:"price_paid"`
	Currency    string       `gorm:"type:text;not null" json:"currency"`
	Title       string       `gorm:"type:text;not null" json:"title"`
	Message     string       `gorm:"type:text;not null" json:"message"`
	Style       string       `gorm:"type:text;not null" json:"style"`
	Color       string       `gorm:"type:text;not null" json:"color"`
	Fingerprint string       `gorm:"type:text;not null" json:"fingerprint"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Claim) TableName() string { return "claims" }

// Content is the validated certificate content attached to a claim.
type Content struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Style   string `json:"style"`
	Color   string `json:"color"`
}

const (
	maxTitleLen   = 120
	maxMessageLen = 500
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate normalizes the content in place and rejects anything outside the
// allow-list. Runs at the boundary, before any transaction opens.
func (c *Content) Validate(allowedStyles []string) error {
	c.Title = strings.TrimSpace(c.Title)
	c.Message = strings.TrimSpace(c.Message)
	c.Style = strings.ToLower(strings.TrimSpace(c.Style))
	c.Color = strings.TrimSpace(c.Color)

	if len(c.Title) > maxTitleLen {
		return ErrInvalidContent
	}
	if len(c.Message) > maxMessageLen {
		return ErrInvalidContent
	}
	if c.Style == "" {
		c.Style = "classic"
	}
	allowed := false
	for _, style := range allowedStyles {
		if c.Style == style {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidStyle
	}
	if c.Color == "" {
		c.Color = "#1a1a2e"
	}
	if !colorPattern.MatchString(c.Color) {
		return ErrInvalidContent
	}
	return nil
}

const dayLayout = "2006-01-02"

// ParseDay canonicalizes any supported day spelling to YYYY-MM-DD at
// midnight UTC. Two requests naming the same calendar day in any timezone
// resolve to the identical key.
func ParseDay(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidDay
	}
	if t, err := time.Parse(dayLayout, raw); err == nil {
		return t.UTC().Format(dayLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format(dayLayout), nil
	}
	return "", ErrInvalidDay
}

type Repository interface {
	// CreateTx is insert-or-ignore keyed on day: ErrAlreadyClaimed when a
	// row for the day exists, with no partial writes.
	CreateTx(ctx context.Context, tx *gorm.DB, claim *Claim) error
	// LockByDayTx fetches the day's claim under a row lock; nil when free.
	LockByDayTx(ctx context.Context, tx *gorm.DB, day string) (*Claim, error)
	// LockByIDTx fetches a claim by id under a row lock; nil when absent.
	LockByIDTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Claim, error)
	// TransferOwnerTx applies a compare-and-swap owner change and returns
	// ErrOwnerMismatch when the row's owner no longer equals expected.
	TransferOwnerTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, newOwner, expectedOwner snowflake.ID, now time.Time) error
	UpdateContentTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, content Content, now time.Time) error
	UpdatePriceTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, pricePaid int64, currency string, now time.Time) error
	UpdateFingerprintTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, fingerprint string) error
	FindByDay(ctx context.Context, db *gorm.DB, day string) (*Claim, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Claim, error)
}

// CreateClaimRequest is a primary-sale or gift-redemption claim creation.
type CreateClaimRequest struct {
	Day       string
	OwnerID   snowflake.ID
	PricePaid int64
	Currency  string
	Content   Content
}

type Service interface {
	// CreateTx inserts the claim and its initial fingerprint inside the
	// caller's transaction.
	CreateTx(ctx context.Context, tx *gorm.DB, req CreateClaimRequest) (*Claim, error)
	// GetByDay is the lock-free public read path; availability consumers
	// may observe slightly stale state.
	GetByDay(ctx context.Context, day string) (*Claim, error)
	// VerifyFingerprint checks a presented fingerprint against the claim's
	// stored one and against an independent recomputation.
	VerifyFingerprint(ctx context.Context, day string, fingerprint string) (bool, error)
}

var (
	ErrInvalidDay         = errors.New("invalid_day")
	ErrInvalidContent     = errors.New("invalid_content")
	ErrInvalidStyle       = errors.New("invalid_style")
	ErrInvalidOwner       = errors.New("invalid_owner")
	ErrAlreadyClaimed     = errors.New("already_claimed")
	ErrOwnerMismatch      = errors.New("owner_mismatch")
	ErrNotFound           = errors.New("claim_not_found")
	ErrFingerprintMissing = errors.New("fingerprint_missing")
)
