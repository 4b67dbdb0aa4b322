package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// SaleEntry is the append-only financial record of a completed marketplace
// sale. Never mutated after insert; the external payment reference is the
// uniqueness key that absorbs redelivered confirmations.
type SaleEntry struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	ListingID          snowflake.ID `gorm:"not null;index" json:"listing_id"`
	Day                string       `gorm:"type:text;not null;index" json:"day"`
	SellerOwnerID      snowflake.ID `gorm:"not null" json:"seller_owner_id"`
	BuyerOwnerID       snowflake.ID `gorm:"not null" json:"buyer_owner_id"`
	Gross              int64        `gorm:"not null" json:"gross"`
	Fee                int64        `gorm:"not null" json:"fee"`
	Net                int64        `gorm:"not null" json:"net"`
	Currency           string       `gorm:"type:text;not null" json:"currency"`
	ExternalPaymentRef string       `gorm:"type:text;not null;uniqueIndex:ux_sale_ledger_payment_ref" json:"external_payment_ref"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (SaleEntry) TableName() string { return "sale_ledger" }

type Service interface {
	// AppendTx writes the entry inside the caller's transaction. A repeated
	// external payment reference returns ErrDuplicateReference with no write.
	AppendTx(ctx context.Context, tx *gorm.DB, entry *SaleEntry) error
	// FindByReference reports a prior entry for ref, nil when none.
	FindByReference(ctx context.Context, db *gorm.DB, ref string) (*SaleEntry, error)
}

var (
	ErrInvalidEntry       = errors.New("invalid_ledger_entry")
	ErrInvalidReference   = errors.New("invalid_payment_reference")
	ErrDuplicateReference = errors.New("duplicate_payment_reference")
)
