package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ownaday/daybook/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEventTx(ctx context.Context, tx *gorm.DB, record *domain.EventRecord) error {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO payment_events (id, provider, provider_event_id, type, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		record.ID,
		record.Provider,
		record.ProviderEventID,
		record.Type,
		record.Payload,
		record.CreatedAt,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrEventAlreadyProcessed
	}
	return nil
}

func (r *repo) MarkProcessedTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		now,
		id,
	).Error
}

func (r *repo) InsertReconciliationTx(ctx context.Context, tx *gorm.DB, item *domain.Reconciliation) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO payment_reconciliations (id, provider, provider_event_id, reason, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.Provider,
		item.ProviderEventID,
		item.Reason,
		item.Payload,
		item.CreatedAt,
	).Error
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, type, payload, processed_at, created_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
