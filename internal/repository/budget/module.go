package budget

import "go.uber.org/fx"

// Module provides the budget repository to Fx.
var Module = fx.Provide(NewRepository)
