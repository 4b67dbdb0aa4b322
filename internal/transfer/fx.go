package transfer

import (
	"github.com/ownaday/daybook/internal/transfer/repository"
	"github.com/ownaday/daybook/internal/transfer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transfer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
