package orders

import "go.uber.org/fx"

// Module provides the order store.
var Module = fx.Module("orders",
	fx.Provide(NewStore),
)
