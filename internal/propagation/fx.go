package propagation

import "go.uber.org/fx"

var Module = fx.Module("propagation",
	fx.Provide(New),
)
