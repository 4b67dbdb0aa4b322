package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventClaimCreated     = "claim.created"
	EventClaimTransferred = "claim.transferred"
)

// Event is an outbound notification for the email/PDF collaborator.
type Event struct {
	Type      string
	DedupeKey string
	Payload   map[string]any
}

// OutboxRecord is the persisted form. Rows are written inside the business
// transaction so a committed ownership change and its notification are
// atomic; the dispatcher drains them afterwards.
type OutboxRecord struct {
	ID           snowflake.ID   `gorm:"primaryKey" json:"id"`
	Type         string         `gorm:"type:text;not null;index" json:"type"`
	DedupeKey    string         `gorm:"type:text;not null;uniqueIndex:ux_outbox_events_dedupe_key" json:"dedupe_key"`
	Payload      datatypes.JSON `gorm:"not null" json:"payload"`
	CreatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	DispatchedAt *time.Time     `json:"dispatched_at"`
}

func (OutboxRecord) TableName() string { return "outbox_events" }

type Outbox struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func NewOutbox(log *zap.Logger, genID *snowflake.Node) *Outbox {
	return &Outbox{
		log:   log.Named("events.outbox"),
		genID: genID,
	}
}

// PublishTx inserts the event inside the caller's transaction. A repeated
// dedupe key is a no-op so retried operations never double-publish.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	res := tx.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (id, type, dedupe_key, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		o.genID.Generate(),
		event.Type,
		event.DedupeKey,
		datatypes.JSON(payload),
		time.Now().UTC(),
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		o.log.Debug("outbox event deduplicated", zap.String("dedupe_key", event.DedupeKey))
	}
	return nil
}

// PendingBatch returns undispatched events oldest first.
func (o *Outbox) PendingBatch(ctx context.Context, db *gorm.DB, limit int) ([]OutboxRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []OutboxRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, type, dedupe_key, payload, created_at, dispatched_at
		 FROM outbox_events
		 WHERE dispatched_at IS NULL
		 ORDER BY created_at ASC
		 LIMIT ?`,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (o *Outbox) MarkDispatched(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events
		 SET dispatched_at = ?
		 WHERE id = ? AND dispatched_at IS NULL`,
		time.Now().UTC(),
		id,
	).Error
}
