package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	"github.com/ownaday/daybook/internal/clock"
	"github.com/ownaday/daybook/internal/config"
	"github.com/ownaday/daybook/internal/events"
	ledgerdomain "github.com/ownaday/daybook/internal/ledger/domain"
	listingdomain "github.com/ownaday/daybook/internal/listing/domain"
	obsmetrics "github.com/ownaday/daybook/internal/observability/metrics"
	ownerdomain "github.com/ownaday/daybook/internal/owner/domain"
	paymentdomain "github.com/ownaday/daybook/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	OwnerRepo   ownerdomain.Repository
	ClaimSvc    claimdomain.Service
	ListingSvc  listingdomain.Service
	Marketplace *config.MarketplaceConfigHolder
	Outbox      *events.Outbox      `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	ownerRepo   ownerdomain.Repository
	claimSvc    claimdomain.Service
	listingSvc  listingdomain.Service
	marketplace *config.MarketplaceConfigHolder
	outbox      *events.Outbox
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		ownerRepo:   p.OwnerRepo,
		claimSvc:    p.ClaimSvc,
		listingSvc:  p.ListingSvc,
		marketplace: p.Marketplace,
		outbox:      p.Outbox,
		obsMetrics:  p.ObsMetrics,
	}
}

// ProcessEvent applies one checkout callback in a single transaction. The
// event record insert doubles as the idempotency guard, so a redelivery
// fails that insert and the whole transaction rolls back with no effect.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.CheckoutEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	day, err := claimdomain.ParseDay(event.Day)
	if err != nil {
		return err
	}
	event.Day = day

	now := s.clock.Now()
	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		Type:            event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		CreatedAt:       now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertEventTx(ctx, tx, &record); err != nil {
			return err
		}

		switch event.Type {
		case paymentdomain.EventTypeDayCheckout:
			if err := s.applyDayCheckout(ctx, tx, event); err != nil {
				return err
			}
		case paymentdomain.EventTypeListingCheckout:
			if err := s.applyListingCheckout(ctx, tx, event); err != nil {
				return err
			}
		default:
			return paymentdomain.ErrInvalidEvent
		}

		return s.repo.MarkProcessedTx(ctx, tx, record.ID, now)
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) && s.obsMetrics != nil {
			s.obsMetrics.RecordDuplicateAbsorbed(ctx, event.Provider)
		}
		return err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, event.Provider, event.Type)
	}
	return nil
}

// applyDayCheckout is the primary sale. A contested day is a conflict the
// processor must not redeliver: the event stays recorded, a reconciliation
// row is flagged, and the callback is acknowledged.
func (s *Service) applyDayCheckout(ctx context.Context, tx *gorm.DB, event *paymentdomain.CheckoutEvent) error {
	content := event.Content
	if err := content.Validate(s.marketplace.Get().AllowedStyles); err != nil {
		return err
	}

	buyer, err := s.ownerRepo.EnsureByEmailTx(ctx, tx, event.Email, event.Name, s.genID.Generate(), s.clock.Now())
	if err != nil {
		return err
	}

	claim, err := s.claimSvc.CreateTx(ctx, tx, claimdomain.CreateClaimRequest{
		Day:       event.Day,
		OwnerID:   buyer.ID,
		PricePaid: event.Amount,
		Currency:  event.Currency,
		Content:   content,
	})
	if errors.Is(err, claimdomain.ErrAlreadyClaimed) {
		return s.flagReconciliation(ctx, tx, event, "already_claimed")
	}
	if err != nil {
		return err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordClaimCreated(ctx, "checkout")
	}
	if s.outbox != nil {
		base := s.marketplace.Get().PublicBaseURL
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventClaimCreated,
			DedupeKey: "claim:" + claim.ID.String(),
			Payload: map[string]any{
				"email":           buyer.Email,
				"day":             claim.Day,
				"public_url":      base + "/days/" + claim.Day,
				"certificate_url": base + "/days/" + claim.Day + "/certificate",
			},
		})
	}
	return nil
}

// applyListingCheckout is the marketplace resale. Conflicts between the
// callback and the listing's current state produce a reconciliation row and
// an acknowledged callback, never an ownership change.
func (s *Service) applyListingCheckout(ctx context.Context, tx *gorm.DB, event *paymentdomain.CheckoutEvent) error {
	if event.ListingID == nil {
		return paymentdomain.ErrInvalidEvent
	}

	var content *claimdomain.Content
	if event.Content != (claimdomain.Content{}) {
		c := event.Content
		if err := c.Validate(s.marketplace.Get().AllowedStyles); err != nil {
			return err
		}
		content = &c
	}

	buyer, err := s.ownerRepo.EnsureByEmailTx(ctx, tx, event.Email, event.Name, s.genID.Generate(), s.clock.Now())
	if err != nil {
		return err
	}

	_, err = s.listingSvc.CompleteTx(ctx, tx, listingdomain.CompleteRequest{
		ListingID:  *event.ListingID,
		BuyerID:    buyer.ID,
		AmountPaid: event.Amount,
		Currency:   event.Currency,
		PaymentRef: event.PaymentRef,
		Content:    content,
	})
	switch {
	case err == nil:
		if s.obsMetrics != nil {
			s.obsMetrics.RecordListingSold(ctx)
		}
		return nil
	case errors.Is(err, ledgerdomain.ErrDuplicateReference):
		// The sale already settled under this payment reference.
		return nil
	case errors.Is(err, listingdomain.ErrNotFound),
		errors.Is(err, listingdomain.ErrNotActive),
		errors.Is(err, listingdomain.ErrAmountMismatch),
		errors.Is(err, listingdomain.ErrDayNotClaimed),
		errors.Is(err, listingdomain.ErrSellerMismatch):
		return s.flagReconciliation(ctx, tx, event, err.Error())
	default:
		return err
	}
}

func (s *Service) flagReconciliation(ctx context.Context, tx *gorm.DB, event *paymentdomain.CheckoutEvent, reason string) error {
	s.log.Warn("payment flagged for reconciliation",
		zap.String("provider", event.Provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("reason", reason),
	)
	return s.repo.InsertReconciliationTx(ctx, tx, &paymentdomain.Reconciliation{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		Reason:          reason,
		Payload:         datatypes.JSON(event.RawPayload),
		CreatedAt:       s.clock.Now(),
	})
}

func validateEvent(event *paymentdomain.CheckoutEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Email = strings.ToLower(strings.TrimSpace(event.Email))
	if event.Email == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.Amount < 0 {
		return paymentdomain.ErrInvalidEvent
	}
	currency := strings.ToUpper(strings.TrimSpace(event.Currency))
	if currency == "" {
		currency = "USD"
	}
	event.Currency = currency
	if len(event.RawPayload) > 0 && !json.Valid(event.RawPayload) {
		return paymentdomain.ErrInvalidPayload
	}
	return nil
}
