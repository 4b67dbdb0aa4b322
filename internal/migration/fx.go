package migration

import (
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	"github.com/ownaday/daybook/internal/events"
	giftdomain "github.com/ownaday/daybook/internal/gift/domain"
	ledgerdomain "github.com/ownaday/daybook/internal/ledger/domain"
	listingdomain "github.com/ownaday/daybook/internal/listing/domain"
	ownerdomain "github.com/ownaday/daybook/internal/owner/domain"
	paymentdomain "github.com/ownaday/daybook/internal/payment/domain"
	transferdomain "github.com/ownaday/daybook/internal/transfer/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if conn.Dialector.Name() != "postgres" {
			// Non-postgres deployments (sqlite dev mode) take the gorm
			// schema path instead of versioned SQL.
			return autoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

func autoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&ownerdomain.Owner{},
		&claimdomain.Claim{},
		&listingdomain.Listing{},
		&giftdomain.GiftCode{},
		&giftdomain.GiftRedemption{},
		&transferdomain.TransferToken{},
		&paymentdomain.EventRecord{},
		&paymentdomain.Reconciliation{},
		&ledgerdomain.SaleEntry{},
		&events.OutboxRecord{},
	)
}
