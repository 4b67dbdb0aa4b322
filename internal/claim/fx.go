package claim

import (
	"github.com/ownaday/daybook/internal/claim/repository"
	"github.com/ownaday/daybook/internal/claim/service"
	"go.uber.org/fx"
)

var Module = fx.Module("claim.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
