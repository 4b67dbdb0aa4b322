package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	ledgerdomain "github.com/ownaday/daybook/internal/ledger/domain"
	"gorm.io/gorm"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusSold     Status = "sold"
	StatusCanceled Status = "canceled"
)

// Listing is a seller's resale offer on a claimed day. At most one active
// listing exists per day, enforced by locking the day's listings before
// insert rather than a unique constraint, because sold and canceled rows
// coexist historically.
type Listing struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	Day           string        `gorm:"type:text;not null;index" json:"day"`
	SellerOwnerID snowflake.ID  `gorm:"not null;index" json:"seller_owner_id"`
	Price         int64         `gorm:"not null" json:"price"`
	Currency      string        `gorm:"type:text;not null" json:"currency"`
	Status        Status        `gorm:"type:text;not null;index" json:"status"`
	BuyerOwnerID  *snowflake.ID `json:"buyer_owner_id,omitempty"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Listing) TableName() string { return "listings" }

type Repository interface {
	InsertTx(ctx context.Context, tx *gorm.DB, listing *Listing) error
	LockByIDTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Listing, error)
	// LockForDayTx locks every listing row for the day and returns the
	// active one, nil when none. The lock scan is what serializes two
	// concurrent opens on the same day.
	LockForDayTx(ctx context.Context, tx *gorm.DB, day string) (*Listing, error)
	MarkSoldTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, buyer snowflake.ID, now time.Time) error
	MarkCanceledTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Listing, error)
	FindActiveByDay(ctx context.Context, db *gorm.DB, day string) (*Listing, error)
}

type OpenListingRequest struct {
	Day         string
	SellerEmail string
	Price       int64
	Currency    string
}

type CancelListingRequest struct {
	ListingID   snowflake.ID
	SellerEmail string
}

// CompleteRequest finalizes a confirmed marketplace sale. Content, when
// present, carries the buyer's certificate edits applied together with the
// ownership change.
type CompleteRequest struct {
	ListingID  snowflake.ID
	BuyerID    snowflake.ID
	AmountPaid int64
	Currency   string
	PaymentRef string
	Content    *claimdomain.Content
}

type Service interface {
	Open(ctx context.Context, req OpenListingRequest) (*Listing, error)
	Cancel(ctx context.Context, req CancelListingRequest) (*Listing, error)
	// CompleteTx runs the sold transition inside the caller's transaction;
	// the payment callback path owns the transaction and the idempotency
	// guard around it.
	CompleteTx(ctx context.Context, tx *gorm.DB, req CompleteRequest) (*ledgerdomain.SaleEntry, error)
	// CancelActiveForDayTx cancels the day's active listing if one exists.
	// Idempotent; used by transfers that move ownership out from under a
	// seller.
	CancelActiveForDayTx(ctx context.Context, tx *gorm.DB, day string) error
}

var (
	ErrInvalidDay           = errors.New("invalid_day")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrNotFound             = errors.New("listing_not_found")
	ErrNotActive            = errors.New("listing_not_active")
	ErrActiveListingExists  = errors.New("active_listing_exists")
	ErrSellerMismatch       = errors.New("seller_mismatch")
	ErrAmountMismatch       = errors.New("amount_mismatch")
	ErrDayNotClaimed        = errors.New("day_not_claimed")
	ErrSellerNotClaimOwner  = errors.New("seller_not_claim_owner")
)
