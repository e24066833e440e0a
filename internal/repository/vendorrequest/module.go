package vendorrequest

import "go.uber.org/fx"

// Module provides the vendor request repository to Fx.
var Module = fx.Provide(NewRepository)
