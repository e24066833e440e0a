package vendorrequest

import "go.uber.org/fx"

// Module provides the vendor request exchange to Fx.
var Module = fx.Provide(NewService)
