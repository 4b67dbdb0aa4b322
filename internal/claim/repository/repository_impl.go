package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ownaday/daybook/internal/claim/domain"
	"github.com/ownaday/daybook/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const claimColumns = `id, day, owner_id, price_paid, currency, title, message, style, color, fingerprint, created_at, updated_at`

func (r *repo) CreateTx(ctx context.Context, tx *gorm.DB, claim *domain.Claim) error {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO claims (
			id, day, owner_id, price_paid, currency,
			title, message, style, color, fingerprint, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (day) DO NOTHING`,
		claim.ID,
		claim.Day,
		claim.OwnerID,
		claim.PricePaid,
		claim.Currency,
		claim.Title,
		claim.Message,
		claim.Style,
		claim.Color,
		claim.Fingerprint,
		claim.CreatedAt,
		claim.UpdatedAt,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlreadyClaimed
	}
	return nil
}

func (r *repo) LockByDayTx(ctx context.Context, tx *gorm.DB, day string) (*domain.Claim, error) {
	var item domain.Claim
	err := tx.WithContext(ctx).Raw(
		`SELECT `+claimColumns+`
		 FROM claims
		 WHERE day = ?
		 LIMIT 1`+db.ForUpdate(tx),
		day,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) LockByIDTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Claim, error) {
	var item domain.Claim
	err := tx.WithContext(ctx).Raw(
		`SELECT `+claimColumns+`
		 FROM claims
		 WHERE id = ?
		 LIMIT 1`+db.ForUpdate(tx),
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) TransferOwnerTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, newOwner, expectedOwner snowflake.ID, now time.Time) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE claims
		 SET owner_id = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		newOwner,
		now,
		id,
		expectedOwner,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrOwnerMismatch
	}
	return nil
}

func (r *repo) UpdateContentTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, content domain.Content, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE claims
		 SET title = ?, message = ?, style = ?, color = ?, updated_at = ?
		 WHERE id = ?`,
		content.Title,
		content.Message,
		content.Style,
		content.Color,
		now,
		id,
	).Error
}

func (r *repo) UpdatePriceTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, pricePaid int64, currency string, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE claims
		 SET price_paid = ?, currency = ?, updated_at = ?
		 WHERE id = ?`,
		pricePaid,
		currency,
		now,
		id,
	).Error
}

func (r *repo) UpdateFingerprintTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, fingerprint string) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE claims
		 SET fingerprint = ?
		 WHERE id = ?`,
		fingerprint,
		id,
	).Error
}

func (r *repo) FindByDay(ctx context.Context, db *gorm.DB, day string) (*domain.Claim, error) {
	var item domain.Claim
	err := db.WithContext(ctx).Raw(
		`SELECT `+claimColumns+`
		 FROM claims
		 WHERE day = ?
		 LIMIT 1`,
		day,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Claim, error) {
	var item domain.Claim
	err := db.WithContext(ctx).Raw(
		`SELECT `+claimColumns+`
		 FROM claims
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
