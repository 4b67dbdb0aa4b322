package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	"gorm.io/gorm"
)

// GiftCode is a limited-use token that creates a claim for a recipient
// without a marketplace purchase. Only stored hashed; uses_count moves only
// on successful claim creation.
type GiftCode struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	TokenHash  string       `gorm:"type:text;not null;uniqueIndex:ux_gift_codes_token_hash" json:"-"`
	MaxUses    *int         `json:"max_uses,omitempty"`
	UsesCount  int          `gorm:"not null;default:0" json:"uses_count"`
	IsDisabled bool         `gorm:"not null;default:false" json:"is_disabled"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (GiftCode) TableName() string { return "gift_codes" }

// GiftRedemption links a consumed code use to the claim it created.
type GiftRedemption struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	GiftCodeID snowflake.ID `gorm:"not null;index" json:"gift_code_id"`
	ClaimID    snowflake.ID `gorm:"not null;index" json:"claim_id"`
	RedeemedAt time.Time    `gorm:"not null" json:"redeemed_at"`
}

func (GiftRedemption) TableName() string { return "gift_redemptions" }

// HashToken derives the stored lookup hash for a plain code.
func HashToken(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}

type Repository interface {
	InsertTx(ctx context.Context, tx *gorm.DB, code *GiftCode) error
	LockByHashTx(ctx context.Context, tx *gorm.DB, tokenHash string) (*GiftCode, error)
	IncrementUsesTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
	DisableTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
	InsertRedemptionTx(ctx context.Context, tx *gorm.DB, redemption *GiftRedemption) error
	FindByHash(ctx context.Context, db *gorm.DB, tokenHash string) (*GiftCode, error)
}

type RedeemRequest struct {
	Code           string
	Day            string
	RecipientEmail string
	RecipientName  string
	Content        claimdomain.Content
}

type MintRequest struct {
	MaxUses *int
}

// MintedCode returns the plain code exactly once, at mint time.
type MintedCode struct {
	GiftCode
	Code string `json:"code"`
}

type Service interface {
	// Redeem consumes one use of the code and creates the day's claim in a
	// single transaction. A contested day rolls everything back without
	// consuming the code.
	Redeem(ctx context.Context, req RedeemRequest) (*claimdomain.Claim, error)
	Mint(ctx context.Context, req MintRequest) (*MintedCode, error)
	Disable(ctx context.Context, code string) error
}

var (
	ErrInvalidCode   = errors.New("invalid_code")
	ErrDisabledCode  = errors.New("disabled_code")
	ErrExhaustedCode = errors.New("exhausted_code")
)
