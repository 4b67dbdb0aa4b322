package owner

import (
	"github.com/ownaday/daybook/internal/owner/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("owner",
	fx.Provide(repository.Provide),
)
