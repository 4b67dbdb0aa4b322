package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/ownaday/daybook/internal/owner/domain"
	"gorm.io/gorm"
)

func TestEnsureByEmailStampsCreatedAtFromCaller(t *testing.T) {
	ctx := context.Background()
	db, node := setupOwnerRepo(t)
	repo := Provide()

	pinned := time.Date(2031, 7, 4, 12, 0, 0, 0, time.UTC)
	var owner *domain.Owner
	if err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		owner, err = repo.EnsureByEmailTx(ctx, tx, "Buyer@Example.com", "", node.Generate(), pinned)
		return err
	}); err != nil {
		t.Fatalf("ensure owner: %v", err)
	}
	if owner.Email != "buyer@example.com" {
		t.Fatalf("expected normalized email, got %s", owner.Email)
	}
	if !owner.CreatedAt.Equal(pinned) {
		t.Fatalf("expected created_at %v, got %v", pinned, owner.CreatedAt)
	}

	// A later ensure resolves the existing row without touching its timestamp.
	var again *domain.Owner
	if err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		again, err = repo.EnsureByEmailTx(ctx, tx, "buyer@example.com", "Buyer", node.Generate(), pinned.Add(time.Hour))
		return err
	}); err != nil {
		t.Fatalf("ensure existing owner: %v", err)
	}
	if again.ID != owner.ID {
		t.Fatalf("expected existing owner %d, got %d", owner.ID, again.ID)
	}
	if !again.CreatedAt.Equal(pinned) {
		t.Fatalf("expected created_at to stay %v, got %v", pinned, again.CreatedAt)
	}
}

func TestEnsureByEmailRejectsInvalidEmail(t *testing.T) {
	ctx := context.Background()
	db, node := setupOwnerRepo(t)
	repo := Provide()

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := repo.EnsureByEmailTx(ctx, tx, "not-an-email", "", node.Generate(), time.Now().UTC())
		return err
	})
	if err != domain.ErrInvalidEmail {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func setupOwnerRepo(t *testing.T) (*gorm.DB, *snowflake.Node) {
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

	if err := db.AutoMigrate(&domain.Owner{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return db, node
}
