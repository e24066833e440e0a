package app

import (
	"go.uber.org/fx"

	"github.com/lablane/procure/internal/cache"
	"github.com/lablane/procure/internal/config"
	"github.com/lablane/procure/internal/database"
	"github.com/lablane/procure/internal/logger"
	"github.com/lablane/procure/internal/messaging"
	"github.com/lablane/procure/internal/notify"
	"github.com/lablane/procure/internal/observability"
	repositorybudget "github.com/lablane/procure/internal/repository/budget"
	repositoryinventory "github.com/lablane/procure/internal/repository/inventory"
	repositoryorder "github.com/lablane/procure/internal/repository/order"
	repositoryquote "github.com/lablane/procure/internal/repository/quote"
	repositoryvendorrequest "github.com/lablane/procure/internal/repository/vendorrequest"
	httpserver "github.com/lablane/procure/internal/server/http"
	servicebudget "github.com/lablane/procure/internal/service/budget"
	serviceorder "github.com/lablane/procure/internal/service/order"
	servicequote "github.com/lablane/procure/internal/service/quote"
	servicevendorrequest "github.com/lablane/procure/internal/service/vendorrequest"
	transporthttp "github.com/lablane/procure/internal/transport/http"
	"github.com/lablane/procure/internal/worker"
	workernotification "github.com/lablane/procure/internal/worker/notification"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	notify.Module,
	observability.Module,
	repositorybudget.Module,
	repositoryquote.Module,
	repositoryvendorrequest.Module,
	repositoryorder.Module,
	repositoryinventory.Module,
	servicebudget.Module,
	servicequote.Module,
	servicevendorrequest.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workernotification.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
