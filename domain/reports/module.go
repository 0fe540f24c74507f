package reports

import "go.uber.org/fx"

// Module provides report persistence and variant generation.
var Module = fx.Module("reports",
	fx.Provide(
		NewStore,
		NewPDFClient,
		NewGeneratorFromConfig,
	),
)
