package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ownaday/daybook/internal/listing/domain"
	"github.com/ownaday/daybook/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const listingColumns = `id, day, seller_owner_id, price, currency, status, buyer_owner_id, created_at, updated_at`

func (r *repo) InsertTx(ctx context.Context, tx *gorm.DB, listing *domain.Listing) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO listings (
			id, day, seller_owner_id, price, currency, status, buyer_owner_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		listing.ID,
		listing.Day,
		listing.SellerOwnerID,
		listing.Price,
		listing.Currency,
		string(listing.Status),
		listing.BuyerOwnerID,
		listing.CreatedAt,
		listing.UpdatedAt,
	).Error
}

func (r *repo) LockByIDTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Listing, error) {
	var item domain.Listing
	err := tx.WithContext(ctx).Raw(
		`SELECT `+listingColumns+`
		 FROM listings
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

func (r *repo) LockForDayTx(ctx context.Context, tx *gorm.DB, day string) (*domain.Listing, error) {
	var items []domain.Listing
	err := tx.WithContext(ctx).Raw(
		`SELECT `+listingColumns+`
		 FROM listings
		 WHERE day = ?`+db.ForUpdate(tx),
		day,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Status == domain.StatusActive {
			return &items[i], nil
		}
	}
	return nil, nil
}

func (r *repo) MarkSoldTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, buyer snowflake.ID, now time.Time) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE listings
		 SET status = ?, buyer_owner_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(domain.StatusSold),
		buyer,
		now,
		id,
		string(domain.StatusActive),
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotActive
	}
	return nil
}

func (r *repo) MarkCanceledTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE listings
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(domain.StatusCanceled),
		now,
		id,
		string(domain.StatusActive),
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotActive
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Listing, error) {
	var item domain.Listing
	err := db.WithContext(ctx).Raw(
		`SELECT `+listingColumns+`
		 FROM listings
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

func (r *repo) FindActiveByDay(ctx context.Context, db *gorm.DB, day string) (*domain.Listing, error) {
	var item domain.Listing
	err := db.WithContext(ctx).Raw(
		`SELECT `+listingColumns+`
		 FROM listings
		 WHERE day = ? AND status = ?
		 LIMIT 1`,
		day,
		string(domain.StatusActive),
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
