package http

import (
	"go.uber.org/fx"

	"api-tracking/internal/delivery/http/handler"
	"api-tracking/internal/delivery/http/router"
)

var Module = fx.Module("http",
	fx.Provide(
		handler.NewHealthHandler,
		handler.NewLogHandler,
		handler.NewSampleHandler,
		router.NewRouter,
	),
)
