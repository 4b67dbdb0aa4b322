package integrity

import "go.uber.org/fx"

var Module = fx.Module("integrity",
	fx.Provide(NewSigner),
)
