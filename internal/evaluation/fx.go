package evaluation

import "go.uber.org/fx"

var Module = fx.Module("evaluation",
	fx.Provide(func() *Engine { return NewEngine(nil) }),
	fx.Provide(NewService),
)
