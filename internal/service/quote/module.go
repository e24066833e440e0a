package quote

import "go.uber.org/fx"

// Module provides the quote service to Fx.
var Module = fx.Provide(NewService)
