package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	claimrepo "github.com/ownaday/daybook/internal/claim/repository"
	claimservice "github.com/ownaday/daybook/internal/claim/service"
	"github.com/ownaday/daybook/internal/clock"
	"github.com/ownaday/daybook/internal/config"
	"github.com/ownaday/daybook/internal/integrity"
	ledgerdomain "github.com/ownaday/daybook/internal/ledger/domain"
	ledgerservice "github.com/ownaday/daybook/internal/ledger/service"
	listingdomain "github.com/ownaday/daybook/internal/listing/domain"
	listingrepo "github.com/ownaday/daybook/internal/listing/repository"
	listingservice "github.com/ownaday/daybook/internal/listing/service"
	ownerdomain "github.com/ownaday/daybook/internal/owner/domain"
	ownerrepo "github.com/ownaday/daybook/internal/owner/repository"
	transferdomain "github.com/ownaday/daybook/internal/transfer/domain"
	"github.com/ownaday/daybook/internal/transfer/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestIssueRequiresClaimOwner(t *testing.T) {
	ctx := context.Background()
	env := setupTransferEnv(t)

	_, err := env.svc.Issue(ctx, transferdomain.IssueRequest{
		Day:        "2031-07-04",
		OwnerEmail: "owner@example.com",
	})
	if !errors.Is(err, claimdomain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unclaimed day, got %v", err)
	}

	env.seedClaim(t, "owner@example.com", "2031-07-04")

	_, err = env.svc.Issue(ctx, transferdomain.IssueRequest{
		Day:        "2031-07-04",
		OwnerEmail: "stranger@example.com",
	})
	if !errors.Is(err, claimdomain.ErrOwnerMismatch) {
		t.Fatalf("expected ErrOwnerMismatch, got %v", err)
	}
}

func TestTransferMovesOwnership(t *testing.T) {
	ctx := context.Background()
	env := setupTransferEnv(t)

	_, claim := env.seedClaim(t, "owner@example.com", "2031-07-04")
	issued, err := env.svc.Issue(ctx, transferdomain.IssueRequest{
		Day:        "2031-07-04",
		OwnerEmail: "owner@example.com",
	})
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}

	transferred, err := env.svc.Transfer(ctx, transferdomain.TransferRequest{
		Day:            "2031-07-04",
		ClaimID:        claim.ID,
		Fingerprint:    claim.Fingerprint,
		Code:           issued.Code,
		RecipientEmail: "recipient@example.com",
		RecipientName:  "Recipient",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if transferred.OwnerID == claim.OwnerID {
		t.Fatalf("expected ownership to move")
	}
	if transferred.Fingerprint == claim.Fingerprint {
		t.Fatalf("expected fingerprint to be recomputed")
	}
	if !env.signer.Verify(transferred.Fingerprint, transferred.Day, transferred.OwnerID, transferred.PricePaid, transferred.CreatedAt) {
		t.Fatalf("expected new fingerprint to verify")
	}

	var usedAt sql.NullTime
	if err := env.db.Raw(`SELECT used_at FROM transfer_tokens WHERE id = ?`, issued.ID).Scan(&usedAt).Error; err != nil {
		t.Fatalf("read token: %v", err)
	}
	if !usedAt.Valid {
		t.Fatalf("expected token to be marked used")
	}
}

func TestTransferReplayRejected(t *testing.T) {
	ctx := context.Background()
	env := setupTransferEnv(t)

	_, claim := env.seedClaim(t, "owner@example.com", "2031-07-04")
	issued, err := env.svc.Issue(ctx, transferdomain.IssueRequest{
		Day:        "2031-07-04",
		OwnerEmail: "owner@example.com",
	})
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}

	transferred, err := env.svc.Transfer(ctx, transferdomain.TransferRequest{
		Day:            "2031-07-04",
		ClaimID:        claim.ID,
		Fingerprint:    claim.Fingerprint,
		Code:           issued.Code,
		RecipientEmail: "recipient@example.com",
	})
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}

	_, err = env.svc.Transfer(ctx, transferdomain.TransferRequest{
		Day:            "2031-07-04",
		ClaimID:        claim.ID,
		Fingerprint:    transferred.Fingerprint,
		Code:           issued.Code,
		RecipientEmail: "third@example.com",
	})
	if !errors.Is(err, transferdomain.ErrCodeUsed) {
		t.Fatalf("expected ErrCodeUsed on replay, got %v", err)
	}

	current, err := env.claimSvc.GetByDay(ctx, "2031-07-04")
	if err != nil {
		t.Fatalf("reload claim: %v", err)
	}
	if current.OwnerID != transferred.OwnerID {
		t.Fatalf("expected ownership unchanged by replay")
	}
}

func TestTransferStaleFingerprintLeavesTokenUnconsumed(t *testing.T) {
	ctx := context.Background()
	env := setupTransferEnv(t)

	_, claim := env.seedClaim(t, "owner@example.com", "2031-07-04")
	issued, err := env.svc.Issue(ctx, transferdomain.IssueRequest{
		Day:        "2031-07-04",
		OwnerEmail: "owner@example.com",
	})
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}

	_, err = env.svc.Transfer(ctx, transferdomain.TransferRequest{
		Day:            "2031-07-04",
		ClaimID:        claim.ID,
		Fingerprint:    "stale-fingerprint",
		Code:           issued.Code,
		RecipientEmail: "recipient@example.com",
	})
	if !errors.Is(err, transferdomain.ErrFingerprintMismatch) {
		t.Fatalf("expected ErrFingerprintMismatch, got %v", err)
	}

	// The rejected attempt must not consume the code: a retry with the
	// current fingerprint succeeds.
	if _, err := env.svc.Transfer(ctx, transferdomain.TransferRequest{
		Day:            "2031-07-04",
		ClaimID:        claim.ID,
		Fingerprint:    claim.Fingerprint,
		Code:           issued.Code,
		RecipientEmail: "recipient@example.com",
	}); err != nil {
		t.Fatalf("retry after rejection: %v", err)
	}
}

func TestTransferToCurrentOwnerRejected(t *testing.T) {
	ctx := context.Background()
	env := setupTransferEnv(t)

	_, claim := env.seedClaim(t, "owner@example.com", "2031-07-04")
	issued, err := env.svc.Issue(ctx, transferdomain.IssueRequest{
		Day:        "2031-07-04",
		OwnerEmail: "owner@example.com",
	})
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}

	_, err = env.svc.Transfer(ctx, transferdomain.TransferRequest{
		Day:            "2031-07-04",
		ClaimID:        claim.ID,
		Fingerprint:    claim.Fingerprint,
		Code:           issued.Code,
		RecipientEmail: "owner@example.com",
	})
	if !errors.Is(err, transferdomain.ErrSameOwner) {
		t.Fatalf("expected ErrSameOwner, got %v", err)
	}
}

func TestTransferCancelsActiveListing(t *testing.T) {
	ctx := context.Background()
	env := setupTransferEnv(t)

	_, claim := env.seedClaim(t, "owner@example.com", "2031-07-04")
	listing, err := env.listingSvc.Open(ctx, listingdomain.OpenListingRequest{
		Day:         "2031-07-04",
		SellerEmail: "owner@example.com",
		Price:       15000,
	})
	if err != nil {
		t.Fatalf("open listing: %v", err)
	}

	issued, err := env.svc.Issue(ctx, transferdomain.IssueRequest{
		Day:        "2031-07-04",
		OwnerEmail: "owner@example.com",
	})
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}

	if _, err := env.svc.Transfer(ctx, transferdomain.TransferRequest{
		Day:            "2031-07-04",
		ClaimID:        claim.ID,
		Fingerprint:    claim.Fingerprint,
		Code:           issued.Code,
		RecipientEmail: "recipient@example.com",
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	var status string
	if err := env.db.Raw(`SELECT status FROM listings WHERE id = ?`, listing.ID).Scan(&status).Error; err != nil {
		t.Fatalf("read listing status: %v", err)
	}
	if status != string(listingdomain.StatusCanceled) {
		t.Fatalf("expected listing canceled by transfer, got %s", status)
	}
}

func TestRevokedCodeRejected(t *testing.T) {
	ctx := context.Background()
	env := setupTransferEnv(t)

	_, claim := env.seedClaim(t, "owner@example.com", "2031-07-04")
	issued, err := env.svc.Issue(ctx, transferdomain.IssueRequest{
		Day:        "2031-07-04",
		OwnerEmail: "owner@example.com",
	})
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}

	if err := env.svc.Revoke(ctx, transferdomain.RevokeRequest{
		Day:        "2031-07-04",
		OwnerEmail: "owner@example.com",
		Code:       issued.Code,
	}); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	_, err = env.svc.Transfer(ctx, transferdomain.TransferRequest{
		Day:            "2031-07-04",
		ClaimID:        claim.ID,
		Fingerprint:    claim.Fingerprint,
		Code:           issued.Code,
		RecipientEmail: "recipient@example.com",
	})
	if !errors.Is(err, transferdomain.ErrCodeRevoked) {
		t.Fatalf("expected ErrCodeRevoked, got %v", err)
	}
}

type transferEnv struct {
	db         *gorm.DB
	node       *snowflake.Node
	signer     *integrity.Signer
	svc        transferdomain.Service
	claimSvc   claimdomain.Service
	listingSvc listingdomain.Service
	owners     ownerdomain.Repository
}

func setupTransferEnv(t *testing.T) *transferEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&ownerdomain.Owner{},
		&claimdomain.Claim{},
		&listingdomain.Listing{},
		&ledgerdomain.SaleEntry{},
		&transferdomain.TransferToken{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	signer := integrity.NewSignerWithSecret("test-secret")
	marketplace := config.NewStaticMarketplaceConfigHolder(config.DefaultMarketplaceConfig())
	owners := ownerrepo.Provide()
	claims := claimrepo.Provide()

	claimSvc := claimservice.NewService(claimservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewSystemClock(),
		Repo:   claims,
		Signer: signer,
	})
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewSystemClock(),
	})
	listingSvc := listingservice.NewService(listingservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clock.NewSystemClock(),
		Repo:        listingrepo.Provide(),
		ClaimRepo:   claims,
		OwnerRepo:   owners,
		LedgerSvc:   ledgerSvc,
		Signer:      signer,
		Marketplace: marketplace,
	})

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clock.NewSystemClock(),
		Repo:        repository.Provide(),
		ClaimRepo:   claims,
		OwnerRepo:   owners,
		ListingSvc:  listingSvc,
		Signer:      signer,
		Marketplace: marketplace,
	})

	return &transferEnv{
		db:         db,
		node:       node,
		signer:     signer,
		svc:        svc,
		claimSvc:   claimSvc,
		listingSvc: listingSvc,
		owners:     owners,
	}
}

func (e *transferEnv) seedClaim(t *testing.T, email, day string) (*ownerdomain.Owner, *claimdomain.Claim) {
	t.Helper()

	var owner *ownerdomain.Owner
	var claim *claimdomain.Claim
	if err := e.db.Transaction(func(tx *gorm.DB) error {
		var err error
		owner, err = e.owners.EnsureByEmailTx(context.Background(), tx, email, "", e.node.Generate(), time.Now().UTC())
		if err != nil {
			return err
		}
		claim, err = e.claimSvc.CreateTx(context.Background(), tx, claimdomain.CreateClaimRequest{
			Day:       day,
			OwnerID:   owner.ID,
			PricePaid: 2900,
			Currency:  "USD",
		})
		return err
	}); err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	return owner, claim
}
