package listing

import (
	"github.com/ownaday/daybook/internal/listing/repository"
	"github.com/ownaday/daybook/internal/listing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("listing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
