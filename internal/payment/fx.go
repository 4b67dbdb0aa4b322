package payment

import (
	"github.com/ownaday/daybook/internal/payment/adapters"
	"github.com/ownaday/daybook/internal/payment/adapters/stripe"
	"github.com/ownaday/daybook/internal/payment/repository"
	paymentservice "github.com/ownaday/daybook/internal/payment/service"
	"github.com/ownaday/daybook/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
