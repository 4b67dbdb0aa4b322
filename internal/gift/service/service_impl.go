package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"strings"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	"github.com/ownaday/daybook/internal/clock"
	"github.com/ownaday/daybook/internal/config"
	"github.com/ownaday/daybook/internal/events"
	giftdomain "github.com/ownaday/daybook/internal/gift/domain"
	ownerdomain "github.com/ownaday/daybook/internal/owner/domain"
	"github.com/ownaday/daybook/pkg/db"
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
	Repo        giftdomain.Repository
	OwnerRepo   ownerdomain.Repository
	ClaimSvc    claimdomain.Service
	Marketplace *config.MarketplaceConfigHolder
	Outbox      *events.Outbox `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        giftdomain.Repository
	ownerRepo   ownerdomain.Repository
	claimSvc    claimdomain.Service
	marketplace *config.MarketplaceConfigHolder
	outbox      *events.Outbox
}

func NewService(p Params) giftdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("gift.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		ownerRepo:   p.OwnerRepo,
		claimSvc:    p.ClaimSvc,
		marketplace: p.Marketplace,
		outbox:      p.Outbox,
	}
}

func (s *Service) Redeem(ctx context.Context, req giftdomain.RedeemRequest) (*claimdomain.Claim, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, giftdomain.ErrInvalidCode
	}
	day, err := claimdomain.ParseDay(req.Day)
	if err != nil {
		return nil, err
	}
	if err := req.Content.Validate(s.marketplace.Get().AllowedStyles); err != nil {
		return nil, err
	}

	tokenHash := giftdomain.HashToken(req.Code)

	var created *claimdomain.Claim
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.repo.LockByHashTx(ctx, tx, tokenHash)
		if err != nil {
			return err
		}
		if code == nil {
			return giftdomain.ErrInvalidCode
		}
		if code.IsDisabled {
			return giftdomain.ErrDisabledCode
		}
		if code.MaxUses != nil && code.UsesCount >= *code.MaxUses {
			return giftdomain.ErrExhaustedCode
		}

		recipient, err := s.ownerRepo.EnsureByEmailTx(ctx, tx, req.RecipientEmail, req.RecipientName, s.genID.Generate(), s.clock.Now())
		if err != nil {
			return err
		}

		// A contested day rolls the whole transaction back, so the code is
		// never consumed on the failure path.
		created, err = s.claimSvc.CreateTx(ctx, tx, claimdomain.CreateClaimRequest{
			Day:       day,
			OwnerID:   recipient.ID,
			PricePaid: 0,
			Currency:  "USD",
			Content:   req.Content,
		})
		if err != nil {
			return err
		}

		if err := s.repo.IncrementUsesTx(ctx, tx, code.ID); err != nil {
			return err
		}
		if err := s.repo.InsertRedemptionTx(ctx, tx, &giftdomain.GiftRedemption{
			ID:         s.genID.Generate(),
			GiftCodeID: code.ID,
			ClaimID:    created.ID,
			RedeemedAt: s.clock.Now(),
		}); err != nil {
			return err
		}

		if s.outbox != nil {
			base := s.marketplace.Get().PublicBaseURL
			if err := s.outbox.PublishTx(ctx, tx, events.Event{
				Type:      events.EventClaimCreated,
				DedupeKey: "claim:" + created.ID.String(),
				Payload: map[string]any{
					"email":           recipient.Email,
					"day":             created.Day,
					"public_url":      base + "/days/" + created.Day,
					"certificate_url": base + "/days/" + created.Day + "/certificate",
				},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("gift code redeemed",
		zap.String("day", created.Day),
		zap.String("claim_id", created.ID.String()),
	)
	return created, nil
}

func (s *Service) Mint(ctx context.Context, req giftdomain.MintRequest) (*giftdomain.MintedCode, error) {
	// Regenerate on a token hash collision instead of failing the mint.
	var code giftdomain.GiftCode
	var plain string
	for attempt := 0; ; attempt++ {
		generated, err := generateCode()
		if err != nil {
			return nil, err
		}
		code = giftdomain.GiftCode{
			ID:        s.genID.Generate(),
			TokenHash: giftdomain.HashToken(generated),
			MaxUses:   req.MaxUses,
			CreatedAt: s.clock.Now(),
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.repo.InsertTx(ctx, tx, &code)
		})
		if err == nil {
			plain = generated
			break
		}
		if db.IsDuplicateKeyErr(err) && attempt < 3 {
			continue
		}
		return nil, err
	}

	s.log.Info("gift code minted", zap.String("gift_code_id", code.ID.String()))
	return &giftdomain.MintedCode{GiftCode: code, Code: plain}, nil
}

func (s *Service) Disable(ctx context.Context, plain string) error {
	tokenHash := giftdomain.HashToken(plain)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.repo.LockByHashTx(ctx, tx, tokenHash)
		if err != nil {
			return err
		}
		if code == nil {
			return giftdomain.ErrInvalidCode
		}
		return s.repo.DisableTx(ctx, tx, code.ID)
	})
}

func generateCode() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return "GIFT-" + encoded, nil
}
