package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/ownaday/daybook/internal/gift/domain"
	"github.com/ownaday/daybook/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertTx(ctx context.Context, tx *gorm.DB, code *domain.GiftCode) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO gift_codes (id, token_hash, max_uses, uses_count, is_disabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		code.ID,
		code.TokenHash,
		code.MaxUses,
		code.UsesCount,
		code.IsDisabled,
		code.CreatedAt,
	).Error
}

func (r *repo) LockByHashTx(ctx context.Context, tx *gorm.DB, tokenHash string) (*domain.GiftCode, error) {
	var item domain.GiftCode
	err := tx.WithContext(ctx).Raw(
		`SELECT id, token_hash, max_uses, uses_count, is_disabled, created_at
		 FROM gift_codes
		 WHERE token_hash = ?
		 LIMIT 1`+db.ForUpdate(tx),
		tokenHash,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) IncrementUsesTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE gift_codes
		 SET uses_count = uses_count + 1
		 WHERE id = ?`,
		id,
	).Error
}

func (r *repo) DisableTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE gift_codes
		 SET is_disabled = ?
		 WHERE id = ?`,
		true,
		id,
	).Error
}

func (r *repo) InsertRedemptionTx(ctx context.Context, tx *gorm.DB, redemption *domain.GiftRedemption) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO gift_redemptions (id, gift_code_id, claim_id, redeemed_at)
		 VALUES (?, ?, ?, ?)`,
		redemption.ID,
		redemption.GiftCodeID,
		redemption.ClaimID,
		redemption.RedeemedAt,
	).Error
}

func (r *repo) FindByHash(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.GiftCode, error) {
	var item domain.GiftCode
	err := db.WithContext(ctx).Raw(
		`SELECT id, token_hash, max_uses, uses_count, is_disabled, created_at
		 FROM gift_codes
		 WHERE token_hash = ?
		 LIMIT 1`,
		tokenHash,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
