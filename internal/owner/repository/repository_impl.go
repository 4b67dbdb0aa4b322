package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ownaday/daybook/internal/owner/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureByEmailTx(ctx context.Context, tx *gorm.DB, email, displayName string, id snowflake.ID, now time.Time) (*domain.Owner, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = email
	}

	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO owners (id, email, display_name, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (email) DO NOTHING`,
		id,
		email,
		displayName,
		now.UTC(),
	).Error; err != nil {
		return nil, err
	}

	owner, err := r.FindByEmail(ctx, tx, email)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, domain.ErrNotFound
	}
	return owner, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Owner, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var item domain.Owner
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, display_name, created_at
		 FROM owners
		 WHERE email = ?
		 LIMIT 1`,
		email,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Owner, error) {
	var item domain.Owner
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, display_name, created_at
		 FROM owners
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
