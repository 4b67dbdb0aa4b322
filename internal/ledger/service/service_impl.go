package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/ownaday/daybook/internal/clock"
	ledgerdomain "github.com/ownaday/daybook/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) AppendTx(ctx context.Context, tx *gorm.DB, entry *ledgerdomain.SaleEntry) error {
	if entry == nil || entry.ListingID == 0 || entry.SellerOwnerID == 0 || entry.BuyerOwnerID == 0 {
		return ledgerdomain.ErrInvalidEntry
	}
	entry.ExternalPaymentRef = strings.TrimSpace(entry.ExternalPaymentRef)
	if entry.ExternalPaymentRef == "" {
		return ledgerdomain.ErrInvalidReference
	}
	entry.Currency = strings.ToUpper(strings.TrimSpace(entry.Currency))
	if entry.Currency == "" {
		return ledgerdomain.ErrInvalidEntry
	}
	if entry.Gross <= 0 || entry.Fee < 0 || entry.Net != entry.Gross-entry.Fee {
		return ledgerdomain.ErrInvalidEntry
	}

	if entry.ID == 0 {
		entry.ID = s.genID.Generate()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}

	res := tx.WithContext(ctx).Exec(
		`INSERT INTO sale_ledger (
			id, listing_id, day, seller_owner_id, buyer_owner_id,
			gross, fee, net, currency, external_payment_ref, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_payment_ref) DO NOTHING`,
		entry.ID,
		entry.ListingID,
		entry.Day,
		entry.SellerOwnerID,
		entry.BuyerOwnerID,
		entry.Gross,
		entry.Fee,
		entry.Net,
		entry.Currency,
		entry.ExternalPaymentRef,
		entry.CreatedAt,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ledgerdomain.ErrDuplicateReference
	}

	s.log.Info("sale ledger entry appended",
		zap.String("listing_id", entry.ListingID.String()),
		zap.String("day", entry.Day),
		zap.Int64("gross", entry.Gross),
		zap.Int64("fee", entry.Fee),
	)
	return nil
}

func (s *Service) FindByReference(ctx context.Context, db *gorm.DB, ref string) (*ledgerdomain.SaleEntry, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ledgerdomain.ErrInvalidReference
	}
	var item ledgerdomain.SaleEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, listing_id, day, seller_owner_id, buyer_owner_id,
			gross, fee, net, currency, external_payment_ref, created_at
		 FROM sale_ledger
		 WHERE external_payment_ref = ?
		 LIMIT 1`,
		ref,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
