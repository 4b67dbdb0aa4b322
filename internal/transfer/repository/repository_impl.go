package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ownaday/daybook/internal/transfer/domain"
	"github.com/ownaday/daybook/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertTx(ctx context.Context, tx *gorm.DB, token *domain.TransferToken) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO transfer_tokens (id, claim_id, code_hash, is_revoked, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		token.ID,
		token.ClaimID,
		token.CodeHash,
		token.IsRevoked,
		token.CreatedAt,
	).Error
}

func (r *repo) LockByClaimAndHashTx(ctx context.Context, tx *gorm.DB, claimID snowflake.ID, codeHash string) (*domain.TransferToken, error) {
	var item domain.TransferToken
	err := tx.WithContext(ctx).Raw(
		`SELECT id, claim_id, code_hash, is_revoked, used_at, created_at
		 FROM transfer_tokens
		 WHERE claim_id = ? AND code_hash = ?
		 LIMIT 1`+db.ForUpdate(tx),
		claimID,
		codeHash,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkUsedTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE transfer_tokens
		 SET used_at = ?
		 WHERE id = ? AND used_at IS NULL AND is_revoked = ?`,
		now,
		id,
		false,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCodeUsed
	}
	return nil
}

func (r *repo) RevokeTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE transfer_tokens
		 SET is_revoked = ?
		 WHERE id = ?`,
		true,
		id,
	).Error
}
