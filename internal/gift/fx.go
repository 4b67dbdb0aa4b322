package gift

import (
	"github.com/ownaday/daybook/internal/gift/repository"
	"github.com/ownaday/daybook/internal/gift/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gift.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
