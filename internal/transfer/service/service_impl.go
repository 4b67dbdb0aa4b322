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
	"github.com/ownaday/daybook/internal/integrity"
	listingdomain "github.com/ownaday/daybook/internal/listing/domain"
	ownerdomain "github.com/ownaday/daybook/internal/owner/domain"
	transferdomain "github.com/ownaday/daybook/internal/transfer/domain"
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
	Repo        transferdomain.Repository
	ClaimRepo   claimdomain.Repository
	OwnerRepo   ownerdomain.Repository
	ListingSvc  listingdomain.Service
	Signer      *integrity.Signer
	Marketplace *config.MarketplaceConfigHolder
	Outbox      *events.Outbox `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        transferdomain.Repository
	claimRepo   claimdomain.Repository
	ownerRepo   ownerdomain.Repository
	listingSvc  listingdomain.Service
	signer      *integrity.Signer
	marketplace *config.MarketplaceConfigHolder
	outbox      *events.Outbox
}

func NewService(p Params) transferdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("transfer.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		claimRepo:   p.ClaimRepo,
		ownerRepo:   p.OwnerRepo,
		listingSvc:  p.ListingSvc,
		signer:      p.Signer,
		marketplace: p.Marketplace,
		outbox:      p.Outbox,
	}
}

func (s *Service) Issue(ctx context.Context, req transferdomain.IssueRequest) (*transferdomain.IssuedCode, error) {
	day, err := claimdomain.ParseDay(req.Day)
	if err != nil {
		return nil, err
	}
	plain, err := generateCode()
	if err != nil {
		return nil, err
	}

	token := transferdomain.TransferToken{
		ID:        s.genID.Generate(),
		CodeHash:  transferdomain.HashCode(plain),
		CreatedAt: s.clock.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim, err := s.claimRepo.LockByDayTx(ctx, tx, day)
		if err != nil {
			return err
		}
		if claim == nil {
			return claimdomain.ErrNotFound
		}
		owner, err := s.ownerRepo.FindByEmail(ctx, tx, req.OwnerEmail)
		if err != nil {
			return err
		}
		if owner == nil || owner.ID != claim.OwnerID {
			return claimdomain.ErrOwnerMismatch
		}
		token.ClaimID = claim.ID
		return s.repo.InsertTx(ctx, tx, &token)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("transfer code issued",
		zap.String("day", day),
		zap.String("claim_id", token.ClaimID.String()),
	)
	return &transferdomain.IssuedCode{TransferToken: token, Code: plain}, nil
}

func (s *Service) Revoke(ctx context.Context, req transferdomain.RevokeRequest) error {
	day, err := claimdomain.ParseDay(req.Day)
	if err != nil {
		return err
	}
	codeHash := transferdomain.HashCode(req.Code)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim, err := s.claimRepo.LockByDayTx(ctx, tx, day)
		if err != nil {
			return err
		}
		if claim == nil {
			return claimdomain.ErrNotFound
		}
		owner, err := s.ownerRepo.FindByEmail(ctx, tx, req.OwnerEmail)
		if err != nil {
			return err
		}
		if owner == nil || owner.ID != claim.OwnerID {
			return claimdomain.ErrOwnerMismatch
		}
		token, err := s.repo.LockByClaimAndHashTx(ctx, tx, claim.ID, codeHash)
		if err != nil {
			return err
		}
		if token == nil {
			return transferdomain.ErrInvalidCode
		}
		return s.repo.RevokeTx(ctx, tx, token.ID)
	})
}

// Transfer reassigns the claim under a fixed lock order: token, then claim,
// then listings. Every rejection leaves the token unconsumed.
func (s *Service) Transfer(ctx context.Context, req transferdomain.TransferRequest) (*claimdomain.Claim, error) {
	day, err := claimdomain.ParseDay(req.Day)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Code) == "" {
		return nil, transferdomain.ErrInvalidCode
	}
	codeHash := transferdomain.HashCode(req.Code)

	var transferred *claimdomain.Claim
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, err := s.repo.LockByClaimAndHashTx(ctx, tx, req.ClaimID, codeHash)
		if err != nil {
			return err
		}
		if token == nil {
			return transferdomain.ErrInvalidCode
		}
		if token.IsRevoked {
			return transferdomain.ErrCodeRevoked
		}
		if token.UsedAt != nil {
			return transferdomain.ErrCodeUsed
		}

		claim, err := s.claimRepo.LockByIDTx(ctx, tx, token.ClaimID)
		if err != nil {
			return err
		}
		if claim == nil || claim.Day != day {
			return claimdomain.ErrNotFound
		}
		// Stale or leaked transfer links carry the fingerprint of a prior
		// ownership state and must not move the claim.
		if claim.Fingerprint != req.Fingerprint {
			return transferdomain.ErrFingerprintMismatch
		}

		recipient, err := s.ownerRepo.EnsureByEmailTx(ctx, tx, req.RecipientEmail, req.RecipientName, s.genID.Generate(), s.clock.Now())
		if err != nil {
			return err
		}
		if recipient.ID == claim.OwnerID {
			return transferdomain.ErrSameOwner
		}

		if err := s.listingSvc.CancelActiveForDayTx(ctx, tx, day); err != nil {
			return err
		}

		now := s.clock.Now()
		if err := s.repo.MarkUsedTx(ctx, tx, token.ID, now); err != nil {
			return err
		}
		if err := s.claimRepo.TransferOwnerTx(ctx, tx, claim.ID, recipient.ID, claim.OwnerID, now); err != nil {
			return err
		}

		fingerprint := s.signer.Fingerprint(claim.Day, recipient.ID, claim.PricePaid, claim.CreatedAt)
		if err := s.claimRepo.UpdateFingerprintTx(ctx, tx, claim.ID, fingerprint); err != nil {
			return err
		}

		claim.OwnerID = recipient.ID
		claim.Fingerprint = fingerprint
		claim.UpdatedAt = now
		transferred = claim

		if s.outbox != nil {
			base := s.marketplace.Get().PublicBaseURL
			return s.outbox.PublishTx(ctx, tx, events.Event{
				Type:      events.EventClaimTransferred,
				DedupeKey: "transfer:" + token.ID.String(),
				Payload: map[string]any{
					"email":           recipient.Email,
					"day":             claim.Day,
					"public_url":      base + "/days/" + claim.Day,
					"certificate_url": base + "/days/" + claim.Day + "/certificate",
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("claim transferred by code",
		zap.String("day", transferred.Day),
		zap.String("claim_id", transferred.ID.String()),
	)
	return transferred, nil
}

func generateCode() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return "XFER-" + encoded, nil
}
