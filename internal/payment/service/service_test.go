package service_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
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
	"github.com/ownaday/daybook/internal/payment/adapters"
	"github.com/ownaday/daybook/internal/payment/adapters/stripe"
	paymentdomain "github.com/ownaday/daybook/internal/payment/domain"
	paymentrepo "github.com/ownaday/daybook/internal/payment/repository"
	paymentservice "github.com/ownaday/daybook/internal/payment/service"
	paymentwebhook "github.com/ownaday/daybook/internal/payment/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

func TestIngestWebhookCreatesClaim(t *testing.T) {
	ctx := context.Background()
	env := setupPaymentEnv(t)

	payload := dayCheckoutPayload("evt_day_1", "2031-07-04", "Buyer@Example.com", 2900)
	if err := env.webhookSvc.IngestWebhook(ctx, "stripe", payload, signedHeader(payload)); err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	assertCount(t, env.db, `SELECT COUNT(1) FROM claims`, 1)
	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_events`, 1)

	claim, err := env.claimSvc.GetByDay(ctx, "2031-07-04")
	if err != nil {
		t.Fatalf("reload claim: %v", err)
	}
	if claim.PricePaid != 2900 {
		t.Fatalf("expected price_paid 2900, got %d", claim.PricePaid)
	}

	var email string
	if err := env.db.Raw(`SELECT email FROM owners WHERE id = ?`, claim.OwnerID).Scan(&email).Error; err != nil {
		t.Fatalf("read owner email: %v", err)
	}
	if email != "buyer@example.com" {
		t.Fatalf("expected normalized owner email, got %s", email)
	}

	var processedAt string
	if err := env.db.Raw(`SELECT processed_at FROM payment_events LIMIT 1`).Scan(&processedAt).Error; err != nil {
		t.Fatalf("read processed_at: %v", err)
	}
	if processedAt == "" {
		t.Fatalf("expected processed_at to be set")
	}
}

func TestIngestWebhookDuplicateEventAbsorbed(t *testing.T) {
	ctx := context.Background()
	env := setupPaymentEnv(t)

	payload := dayCheckoutPayload("evt_dup", "2031-07-04", "buyer@example.com", 2900)
	if err := env.webhookSvc.IngestWebhook(ctx, "stripe", payload, signedHeader(payload)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	err := env.webhookSvc.IngestWebhook(ctx, "stripe", payload, signedHeader(payload))
	if !errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed, got %v", err)
	}

	assertCount(t, env.db, `SELECT COUNT(1) FROM claims`, 1)
	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_events`, 1)
}

func TestIngestWebhookRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	env := setupPaymentEnv(t)

	payload := dayCheckoutPayload("evt_forged", "2031-07-04", "buyer@example.com", 2900)
	header := http.Header{}
	header.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, time.Now().Unix()))

	err := env.webhookSvc.IngestWebhook(ctx, "stripe", payload, header)
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_events`, 0)
	assertCount(t, env.db, `SELECT COUNT(1) FROM claims`, 0)
}

func TestContestedDayCheckoutFlagsReconciliation(t *testing.T) {
	ctx := context.Background()
	env := setupPaymentEnv(t)

	env.seedOwnedClaim(t, "first@example.com", "2031-07-04")

	payload := dayCheckoutPayload("evt_contested", "2031-07-04", "second@example.com", 2900)
	if err := env.webhookSvc.IngestWebhook(ctx, "stripe", payload, signedHeader(payload)); err != nil {
		t.Fatalf("expected contested checkout to be acknowledged, got %v", err)
	}

	assertCount(t, env.db, `SELECT COUNT(1) FROM claims`, 1)
	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_events`, 1)
	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_reconciliations`, 1)

	var reason string
	if err := env.db.Raw(`SELECT reason FROM payment_reconciliations LIMIT 1`).Scan(&reason).Error; err != nil {
		t.Fatalf("read reconciliation reason: %v", err)
	}
	if reason != "already_claimed" {
		t.Fatalf("expected reason already_claimed, got %s", reason)
	}

	claim, err := env.claimSvc.GetByDay(ctx, "2031-07-04")
	if err != nil {
		t.Fatalf("reload claim: %v", err)
	}
	var firstOwnerEmail string
	if err := env.db.Raw(`SELECT email FROM owners WHERE id = ?`, claim.OwnerID).Scan(&firstOwnerEmail).Error; err != nil {
		t.Fatalf("read owner email: %v", err)
	}
	if firstOwnerEmail != "first@example.com" {
		t.Fatalf("expected original owner to keep the day, got %s", firstOwnerEmail)
	}
}

func TestListingCheckoutCompletesSale(t *testing.T) {
	ctx := context.Background()
	env := setupPaymentEnv(t)

	env.seedOwnedClaim(t, "seller@example.com", "2031-07-04")
	listing, err := env.listingSvc.Open(ctx, listingdomain.OpenListingRequest{
		Day:         "2031-07-04",
		SellerEmail: "seller@example.com",
		Price:       15000,
	})
	if err != nil {
		t.Fatalf("open listing: %v", err)
	}

	payload := listingCheckoutPayload("evt_sale", "2031-07-04", listing.ID, "buyer@example.com", 15000)
	if err := env.webhookSvc.IngestWebhook(ctx, "stripe", payload, signedHeader(payload)); err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	assertCount(t, env.db, `SELECT COUNT(1) FROM sale_ledger`, 1)

	claim, err := env.claimSvc.GetByDay(ctx, "2031-07-04")
	if err != nil {
		t.Fatalf("reload claim: %v", err)
	}
	var buyerEmail string
	if err := env.db.Raw(`SELECT email FROM owners WHERE id = ?`, claim.OwnerID).Scan(&buyerEmail).Error; err != nil {
		t.Fatalf("read owner email: %v", err)
	}
	if buyerEmail != "buyer@example.com" {
		t.Fatalf("expected buyer to own the claim, got %s", buyerEmail)
	}

	var status string
	if err := env.db.Raw(`SELECT status FROM listings WHERE id = ?`, listing.ID).Scan(&status).Error; err != nil {
		t.Fatalf("read listing status: %v", err)
	}
	if status != string(listingdomain.StatusSold) {
		t.Fatalf("expected sold listing, got %s", status)
	}
}

func TestListingCheckoutAmountMismatchFlagsReconciliation(t *testing.T) {
	ctx := context.Background()
	env := setupPaymentEnv(t)

	env.seedOwnedClaim(t, "seller@example.com", "2031-07-04")
	listing, err := env.listingSvc.Open(ctx, listingdomain.OpenListingRequest{
		Day:         "2031-07-04",
		SellerEmail: "seller@example.com",
		Price:       15000,
	})
	if err != nil {
		t.Fatalf("open listing: %v", err)
	}

	payload := listingCheckoutPayload("evt_short", "2031-07-04", listing.ID, "buyer@example.com", 9000)
	if err := env.webhookSvc.IngestWebhook(ctx, "stripe", payload, signedHeader(payload)); err != nil {
		t.Fatalf("expected mismatched sale to be acknowledged, got %v", err)
	}

	assertCount(t, env.db, `SELECT COUNT(1) FROM sale_ledger`, 0)
	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_reconciliations`, 1)

	var reason string
	if err := env.db.Raw(`SELECT reason FROM payment_reconciliations LIMIT 1`).Scan(&reason).Error; err != nil {
		t.Fatalf("read reconciliation reason: %v", err)
	}
	if reason != listingdomain.ErrAmountMismatch.Error() {
		t.Fatalf("expected reason %s, got %s", listingdomain.ErrAmountMismatch.Error(), reason)
	}

	var status string
	if err := env.db.Raw(`SELECT status FROM listings WHERE id = ?`, listing.ID).Scan(&status).Error; err != nil {
		t.Fatalf("read listing status: %v", err)
	}
	if status != string(listingdomain.StatusActive) {
		t.Fatalf("expected listing to stay active, got %s", status)
	}
}

func TestListingCheckoutSellerMismatchFlagsReconciliation(t *testing.T) {
	ctx := context.Background()
	env := setupPaymentEnv(t)

	env.seedOwnedClaim(t, "seller@example.com", "2031-07-04")
	listing, err := env.listingSvc.Open(ctx, listingdomain.OpenListingRequest{
		Day:         "2031-07-04",
		SellerEmail: "seller@example.com",
		Price:       15000,
	})
	if err != nil {
		t.Fatalf("open listing: %v", err)
	}

	// Move the day to another owner behind the listing's back, as a
	// concurrent transfer would.
	var newOwner *ownerdomain.Owner
	if err := env.db.Transaction(func(tx *gorm.DB) error {
		newOwner, err = env.owners.EnsureByEmailTx(ctx, tx, "heir@example.com", "", env.node.Generate(), time.Now().UTC())
		return err
	}); err != nil {
		t.Fatalf("ensure new owner: %v", err)
	}
	if err := env.db.Exec(`UPDATE claims SET owner_id = ? WHERE day = ?`, newOwner.ID, "2031-07-04").Error; err != nil {
		t.Fatalf("reassign claim: %v", err)
	}

	payload := listingCheckoutPayload("evt_stale", "2031-07-04", listing.ID, "buyer@example.com", 15000)
	if err := env.webhookSvc.IngestWebhook(ctx, "stripe", payload, signedHeader(payload)); err != nil {
		t.Fatalf("expected stale sale to be acknowledged, got %v", err)
	}

	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_events`, 1)
	assertCount(t, env.db, `SELECT COUNT(1) FROM sale_ledger`, 0)
	assertCount(t, env.db, `SELECT COUNT(1) FROM payment_reconciliations`, 1)

	var reason string
	if err := env.db.Raw(`SELECT reason FROM payment_reconciliations LIMIT 1`).Scan(&reason).Error; err != nil {
		t.Fatalf("read reconciliation reason: %v", err)
	}
	if reason != listingdomain.ErrSellerMismatch.Error() {
		t.Fatalf("expected reason %s, got %s", listingdomain.ErrSellerMismatch.Error(), reason)
	}

	claim, err := env.claimSvc.GetByDay(ctx, "2031-07-04")
	if err != nil {
		t.Fatalf("reload claim: %v", err)
	}
	if claim.OwnerID != newOwner.ID {
		t.Fatalf("expected ownership to stay with %d, got %d", newOwner.ID, claim.OwnerID)
	}

	var status string
	if err := env.db.Raw(`SELECT status FROM listings WHERE id = ?`, listing.ID).Scan(&status).Error; err != nil {
		t.Fatalf("read listing status: %v", err)
	}
	if status != string(listingdomain.StatusActive) {
		t.Fatalf("expected listing to stay active, got %s", status)
	}
}

type paymentEnv struct {
	db         *gorm.DB
	node       *snowflake.Node
	claimSvc   claimdomain.Service
	listingSvc listingdomain.Service
	owners     ownerdomain.Repository
	webhookSvc *paymentwebhook.Service
}

func setupPaymentEnv(t *testing.T) *paymentEnv {
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
		&paymentdomain.EventRecord{},
		&paymentdomain.Reconciliation{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(2)
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
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clock.NewSystemClock(),
		Repo:        paymentrepo.Provide(),
		OwnerRepo:   owners,
		ClaimSvc:    claimSvc,
		ListingSvc:  listingSvc,
		Marketplace: marketplace,
	})
	webhookSvc := paymentwebhook.NewService(paymentwebhook.Params{
		Log:        zap.NewNop(),
		PaymentSvc: paymentSvc,
		Adapters:   adapters.NewRegistry(stripe.NewFactory()),
		Cfg:        config.Config{PaymentWebhookSecret: webhookSecret},
	})

	return &paymentEnv{
		db:         db,
		node:       node,
		claimSvc:   claimSvc,
		listingSvc: listingSvc,
		owners:     owners,
		webhookSvc: webhookSvc,
	}
}

func (e *paymentEnv) seedOwnedClaim(t *testing.T, email, day string) *claimdomain.Claim {
	t.Helper()

	var claim *claimdomain.Claim
	if err := e.db.Transaction(func(tx *gorm.DB) error {
		owner, err := e.owners.EnsureByEmailTx(context.Background(), tx, email, "", e.node.Generate(), time.Now().UTC())
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
	return claim
}

func dayCheckoutPayload(eventID, day, email string, amount int64) []byte {
	return checkoutPayload(eventID, map[string]any{"day": day}, email, amount)
}

func listingCheckoutPayload(eventID, day string, listingID snowflake.ID, email string, amount int64) []byte {
	return checkoutPayload(eventID, map[string]any{
		"day":        day,
		"listing_id": listingID.String(),
	}, email, amount)
}

func checkoutPayload(eventID string, metadata map[string]any, email string, amount int64) []byte {
	now := time.Now().UTC().Unix()
	payload, err := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    "checkout.session.completed",
		"created": now,
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_" + eventID,
				"payment_intent": "pi_" + eventID,
				"amount_total":   amount,
				"currency":       "usd",
				"customer_email": email,
				"created":        now,
				"metadata":       metadata,
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return payload
}

func signedHeader(payload []byte) http.Header {
	header := http.Header{}
	header.Set("Stripe-Signature", buildStripeSignatureHeader(webhookSecret, payload, time.Now().Unix()))
	return header
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}

func assertCount(t *testing.T, db *gorm.DB, query string, want int) {
	t.Helper()
	var got int
	if err := db.Raw(query).Scan(&got).Error; err != nil {
		t.Fatalf("count query %q: %v", query, err)
	}
	if got != want {
		t.Fatalf("expected %d rows for %q, got %d", want, query, got)
	}
}
