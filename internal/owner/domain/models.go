package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Owner is an account holder. Owners are created lazily on the first
// purchase, gift or transfer naming their email and are never deleted.
type Owner struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Email       string       `gorm:"type:text;not null;uniqueIndex:ux_owners_email" json:"email"`
	DisplayName string       `gorm:"type:text;not null" json:"display_name"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Owner) TableName() string { return "owners" }

type Repository interface {
	// EnsureByEmailTx resolves the owner for email, creating the row when
	// absent. Safe against concurrent creation through the unique index.
	EnsureByEmailTx(ctx context.Context, tx *gorm.DB, email, displayName string, id snowflake.ID, now time.Time) (*Owner, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Owner, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Owner, error)
}

var (
	ErrInvalidEmail = errors.New("invalid_email")
	ErrNotFound     = errors.New("owner_not_found")
)
