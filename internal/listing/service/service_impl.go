package service

import (
	"context"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	"github.com/ownaday/daybook/internal/clock"
	"github.com/ownaday/daybook/internal/config"
	"github.com/ownaday/daybook/internal/events"
	"github.com/ownaday/daybook/internal/integrity"
	ledgerdomain "github.com/ownaday/daybook/internal/ledger/domain"
	listingdomain "github.com/ownaday/daybook/internal/listing/domain"
	ownerdomain "github.com/ownaday/daybook/internal/owner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        listingdomain.Repository
	ClaimRepo   claimdomain.Repository
	OwnerRepo   ownerdomain.Repository
	LedgerSvc   ledgerdomain.Service
	Signer      *integrity.Signer
	Marketplace *config.MarketplaceConfigHolder
	Outbox      *events.Outbox `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        listingdomain.Repository
	claimRepo   claimdomain.Repository
	ownerRepo   ownerdomain.Repository
	ledgerSvc   ledgerdomain.Service
	signer      *integrity.Signer
	marketplace *config.MarketplaceConfigHolder
	outbox      *events.Outbox
}

func NewService(p Params) listingdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("listing.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		claimRepo:   p.ClaimRepo,
		ownerRepo:   p.OwnerRepo,
		ledgerSvc:   p.LedgerSvc,
		signer:      p.Signer,
		marketplace: p.Marketplace,
		outbox:      p.Outbox,
	}
}

func (s *Service) Open(ctx context.Context, req listingdomain.OpenListingRequest) (*listingdomain.Listing, error) {
	day, err := claimdomain.ParseDay(req.Day)
	if err != nil {
		return nil, listingdomain.ErrInvalidDay
	}
	if req.Price <= 0 {
		return nil, listingdomain.ErrInvalidPrice
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	var created *listingdomain.Listing
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.repo.LockForDayTx(ctx, tx, day)
		if err != nil {
			return err
		}
		if active != nil {
			return listingdomain.ErrActiveListingExists
		}

		item, err := s.claimRepo.LockByDayTx(ctx, tx, day)
		if err != nil {
			return err
		}
		if item == nil {
			return listingdomain.ErrDayNotClaimed
		}

		seller, err := s.ownerRepo.FindByEmail(ctx, tx, req.SellerEmail)
		if err != nil {
			return err
		}
		if seller == nil || seller.ID != item.OwnerID {
			return listingdomain.ErrSellerNotClaimOwner
		}

		now := s.clock.Now()
		created = &listingdomain.Listing{
			ID:            s.genID.Generate(),
			Day:           day,
			SellerOwnerID: seller.ID,
			Price:         req.Price,
			Currency:      currency,
			Status:        listingdomain.StatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return s.repo.InsertTx(ctx, tx, created)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("listing opened",
		zap.String("listing_id", created.ID.String()),
		zap.String("day", created.Day),
		zap.Int64("price", created.Price),
	)
	return created, nil
}

func (s *Service) Cancel(ctx context.Context, req listingdomain.CancelListingRequest) (*listingdomain.Listing, error) {
	var canceled *listingdomain.Listing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.LockByIDTx(ctx, tx, req.ListingID)
		if err != nil {
			return err
		}
		if item == nil {
			return listingdomain.ErrNotFound
		}

		seller, err := s.ownerRepo.FindByEmail(ctx, tx, req.SellerEmail)
		if err != nil {
			return err
		}
		if seller == nil || seller.ID != item.SellerOwnerID {
			return listingdomain.ErrSellerMismatch
		}

		if err := s.repo.MarkCanceledTx(ctx, tx, item.ID, s.clock.Now()); err != nil {
			return err
		}
		item.Status = listingdomain.StatusCanceled
		canceled = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("listing canceled",
		zap.String("listing_id", canceled.ID.String()),
		zap.String("day", canceled.Day),
	)
	return canceled, nil
}

func (s *Service) CompleteTx(ctx context.Context, tx *gorm.DB, req listingdomain.CompleteRequest) (*ledgerdomain.SaleEntry, error) {
	// A redelivered confirmation with a known payment reference is detected
	// before any write.
	prior, err := s.ledgerSvc.FindByReference(ctx, tx, req.PaymentRef)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return nil, ledgerdomain.ErrDuplicateReference
	}

	item, err := s.repo.LockByIDTx(ctx, tx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, listingdomain.ErrNotFound
	}
	if item.Status != listingdomain.StatusActive {
		return nil, listingdomain.ErrNotActive
	}

	cl, err := s.claimRepo.LockByDayTx(ctx, tx, item.Day)
	if err != nil {
		return nil, err
	}
	if cl == nil {
		return nil, listingdomain.ErrDayNotClaimed
	}
	// The seller may have been overwritten by a concurrent gift or transfer.
	if cl.OwnerID != item.SellerOwnerID {
		return nil, listingdomain.ErrSellerMismatch
	}

	if req.AmountPaid != item.Price {
		return nil, listingdomain.ErrAmountMismatch
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency != "" && currency != item.Currency {
		return nil, listingdomain.ErrAmountMismatch
	}

	now := s.clock.Now()
	if req.Content != nil {
		if err := s.claimRepo.UpdateContentTx(ctx, tx, cl.ID, *req.Content, now); err != nil {
			return nil, err
		}
	}
	if err := s.claimRepo.TransferOwnerTx(ctx, tx, cl.ID, req.BuyerID, cl.OwnerID, now); err != nil {
		return nil, err
	}
	if err := s.claimRepo.UpdatePriceTx(ctx, tx, cl.ID, req.AmountPaid, item.Currency, now); err != nil {
		return nil, err
	}
	if err := s.repo.MarkSoldTx(ctx, tx, item.ID, req.BuyerID, now); err != nil {
		return nil, err
	}

	fee := s.computeFee(req.AmountPaid)
	entry := &ledgerdomain.SaleEntry{
		ListingID:          item.ID,
		Day:                item.Day,
		SellerOwnerID:      item.SellerOwnerID,
		BuyerOwnerID:       req.BuyerID,
		Gross:              req.AmountPaid,
		Fee:                fee,
		Net:                req.AmountPaid - fee,
		Currency:           item.Currency,
		ExternalPaymentRef: req.PaymentRef,
	}
	if err := s.ledgerSvc.AppendTx(ctx, tx, entry); err != nil {
		return nil, err
	}

	fingerprint := s.signer.Fingerprint(cl.Day, req.BuyerID, req.AmountPaid, cl.CreatedAt)
	if err := s.claimRepo.UpdateFingerprintTx(ctx, tx, cl.ID, fingerprint); err != nil {
		return nil, err
	}

	if s.outbox != nil {
		buyer, err := s.ownerRepo.FindByID(ctx, tx, req.BuyerID)
		if err != nil {
			return nil, err
		}
		email := ""
		if buyer != nil {
			email = buyer.Email
		}
		base := s.marketplace.Get().PublicBaseURL
		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventClaimTransferred,
			DedupeKey: "sale:" + req.PaymentRef,
			Payload: map[string]any{
				"email":           email,
				"day":             cl.Day,
				"public_url":      base + "/days/" + cl.Day,
				"certificate_url": base + "/days/" + cl.Day + "/certificate",
			},
		}); err != nil {
			return nil, err
		}
	}

	s.log.Info("listing sold",
		zap.String("listing_id", item.ID.String()),
		zap.String("day", item.Day),
		zap.Int64("gross", entry.Gross),
		zap.Int64("net", entry.Net),
	)
	return entry, nil
}

func (s *Service) CancelActiveForDayTx(ctx context.Context, tx *gorm.DB, day string) error {
	active, err := s.repo.LockForDayTx(ctx, tx, day)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}
	if err := s.repo.MarkCanceledTx(ctx, tx, active.ID, s.clock.Now()); err != nil {
		return err
	}
	s.log.Info("listing canceled by ownership change",
		zap.String("listing_id", active.ID.String()),
		zap.String("day", day),
	)
	return nil
}

func (s *Service) computeFee(gross int64) int64 {
	cfg := s.marketplace.Get()
	fee := int64(math.Round(float64(gross) * cfg.FeeRate))
	if fee < cfg.MinimumFee {
		fee = cfg.MinimumFee
	}
	if fee > gross {
		fee = gross
	}
	return fee
}
