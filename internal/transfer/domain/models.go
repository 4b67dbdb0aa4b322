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

// TransferToken is a single-use secret that reassigns an existing claim's
// ownership. Only stored hashed; used_at flips exactly once.
type TransferToken struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ClaimID   snowflake.ID `gorm:"not null;index" json:"claim_id"`
	CodeHash  string       `gorm:"type:text;not null;uniqueIndex:ux_transfer_tokens_code_hash" json:"-"`
	IsRevoked bool         `gorm:"not null;default:false" json:"is_revoked"`
	UsedAt    *time.Time   `json:"used_at,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (TransferToken) TableName() string { return "transfer_tokens" }

// HashCode derives the stored lookup hash for a plain transfer code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}

type Repository interface {
	InsertTx(ctx context.Context, tx *gorm.DB, token *TransferToken) error
	// LockByClaimAndHashTx fetches the token under a row lock; nil when no
	// token matches the pair.
	LockByClaimAndHashTx(ctx context.Context, tx *gorm.DB, claimID snowflake.ID, codeHash string) (*TransferToken, error)
	// MarkUsedTx stamps used_at, guarded so an already-used or revoked row
	// returns ErrCodeUsed instead of silently winning twice.
	MarkUsedTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error
	RevokeTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
}

// IssueRequest mints a transfer code for a claim the requester owns.
type IssueRequest struct {
	Day        string
	OwnerEmail string
}

// IssuedCode returns the plain code exactly once, at issue time.
type IssuedCode struct {
	TransferToken
	Code string `json:"code"`
}

type RevokeRequest struct {
	Day        string
	OwnerEmail string
	Code       string
}

// TransferRequest reassigns a claim to the holder of a valid code.
type TransferRequest struct {
	Day            string
	ClaimID        snowflake.ID
	Fingerprint    string
	Code           string
	RecipientEmail string
	RecipientName  string
}

type Service interface {
	Issue(ctx context.Context, req IssueRequest) (*IssuedCode, error)
	Revoke(ctx context.Context, req RevokeRequest) error
	// Transfer runs the full reassignment in one transaction with a fixed
	// lock order: token, then claim, then listings.
	Transfer(ctx context.Context, req TransferRequest) (*claimdomain.Claim, error)
}

var (
	ErrInvalidCode         = errors.New("invalid_code")
	ErrCodeRevoked         = errors.New("code_revoked")
	ErrCodeUsed            = errors.New("code_used")
	ErrFingerprintMismatch = errors.New("fingerprint_mismatch")
	ErrSameOwner           = errors.New("same_owner")
)
