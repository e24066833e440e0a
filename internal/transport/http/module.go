package http

import (
	"go.uber.org/fx"

	budgettransport "github.com/lablane/procure/internal/transport/http/budget"
	ordertransport "github.com/lablane/procure/internal/transport/http/order"
	quotetransport "github.com/lablane/procure/internal/transport/http/quote"
	vendorrequesttransport "github.com/lablane/procure/internal/transport/http/vendorrequest"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	quotetransport.Module,
	budgettransport.Module,
	vendorrequesttransport.Module,
	ordertransport.Module,
)
