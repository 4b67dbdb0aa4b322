package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	"github.com/ownaday/daybook/internal/clock"
	"github.com/ownaday/daybook/internal/integrity"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   claimdomain.Repository
	Signer *integrity.Signer
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   claimdomain.Repository
	signer *integrity.Signer
}

func NewService(p Params) claimdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("claim.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		signer: p.Signer,
	}
}

func (s *Service) CreateTx(ctx context.Context, tx *gorm.DB, req claimdomain.CreateClaimRequest) (*claimdomain.Claim, error) {
	day, err := claimdomain.ParseDay(req.Day)
	if err != nil {
		return nil, err
	}
	if req.OwnerID == 0 {
		return nil, claimdomain.ErrInvalidOwner
	}

	now := s.clock.Now()
	item := &claimdomain.Claim{
		ID:        s.genID.Generate(),
		Day:       day,
		OwnerID:   req.OwnerID,
		PricePaid: req.PricePaid,
		Currency:  strings.ToUpper(strings.TrimSpace(req.Currency)),
		Title:     req.Content.Title,
		Message:   req.Content.Message,
		Style:     req.Content.Style,
		Color:     req.Content.Color,
		CreatedAt: now,
		UpdatedAt: now,
	}
	item.Fingerprint = s.signer.Fingerprint(item.Day, item.OwnerID, item.PricePaid, item.CreatedAt)

	if err := s.repo.CreateTx(ctx, tx, item); err != nil {
		return nil, err
	}

	s.log.Info("claim created",
		zap.String("day", item.Day),
		zap.String("claim_id", item.ID.String()),
		zap.String("owner_id", item.OwnerID.String()),
	)
	return item, nil
}

func (s *Service) GetByDay(ctx context.Context, day string) (*claimdomain.Claim, error) {
	canonical, err := claimdomain.ParseDay(day)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByDay(ctx, s.db, canonical)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, claimdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) VerifyFingerprint(ctx context.Context, day string, fingerprint string) (bool, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return false, claimdomain.ErrFingerprintMissing
	}
	item, err := s.GetByDay(ctx, day)
	if err != nil {
		return false, err
	}
	if item.Fingerprint != fingerprint {
		return false, nil
	}
	return s.signer.Verify(fingerprint, item.Day, item.OwnerID, item.PricePaid, item.CreatedAt), nil
}
