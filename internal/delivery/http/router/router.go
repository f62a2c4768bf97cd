package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"api-tracking/internal/config"
	"api-tracking/internal/delivery/http/handler"
	"api-tracking/internal/delivery/http/middleware"
	"api-tracking/internal/tracking"
)

// UserHeader names the caller on sample routes
const UserHeader = "X-User"

type Router struct {
	app           *fiber.App
	config        *config.Config
	registry      *prometheus.Registry
	healthHandler *handler.HealthHandler
	logHandler    *handler.LogHandler
	sampleHandler *handler.SampleHandler

	track views
}

// views holds one tracking middleware per route configuration
type views struct {
	base, sensitive, postOnly, custom, errorsOnly, slow, raw fiber.Handler
}

func NewRouter(
	cfg *config.Config,
	registry *prometheus.Registry,
	interceptor *tracking.Interceptor,
	healthHandler *handler.HealthHandler,
	logHandler *handler.LogHandler,
	sampleHandler *handler.SampleHandler,
) (*Router, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: customErrorHandler,
	})

	track, err := buildViews(cfg.Tracking.Enabled, interceptor)
	if err != nil {
		return nil, err
	}

	return &Router{
		app:           app,
		config:        cfg,
		registry:      registry,
		healthHandler: healthHandler,
		logHandler:    logHandler,
		sampleHandler: sampleHandler,
		track:         track,
	}, nil
}

func buildViews(enabled bool, base *tracking.Interceptor) (views, error) {
	if !enabled {
		skip := func(c *fiber.Ctx) error { return c.Next() }
		return views{skip, skip, skip, skip, skip, skip, skip}, nil
	}

	derive := func(apply func(*tracking.Config)) (fiber.Handler, error) {
		i, err := base.With(apply)
		if err != nil {
			return nil, err
		}
		return middleware.Tracking(i), nil
	}

	v := views{base: middleware.Tracking(base)}
	var err error
	if v.sensitive, err = derive(func(c *tracking.Config) {
		c.SensitiveFields = append(c.SensitiveFields, "my_field")
	}); err != nil {
		return views{}, err
	}
	if v.postOnly, err = derive(func(c *tracking.Config) {
		c.LoggingMethods = []string{fiber.MethodPost}
	}); err != nil {
		return views{}, err
	}
	if v.custom, err = derive(func(c *tracking.Config) {
		c.ShouldLog = tracking.All(tracking.MethodPolicy(c.LoggingMethods), tracking.ResponseContains("log"))
	}); err != nil {
		return views{}, err
	}
	if v.errorsOnly, err = derive(func(c *tracking.Config) {
		c.ShouldLog = tracking.ErrorsOnly()
	}); err != nil {
		return views{}, err
	}
	if v.slow, err = derive(func(c *tracking.Config) {
		c.HandleLog = tracking.SlowerThan(500)
	}); err != nil {
		return views{}, err
	}
	if v.raw, err = derive(func(c *tracking.Config) {
		c.DecodeRequestBody = false
	}); err != nil {
		return views{}, err
	}
	return v, nil
}

func (r *Router) Setup() *fiber.App {
	// Middleware
	r.app.Use(recover.New())
	r.app.Use(requestid.New())
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization," + UserHeader,
	}))

	if r.config.IsDevelopment() {
		r.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	r.app.Get("/health", r.healthHandler.Health)
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))

	// Log viewer route (HTML page)
	r.app.Get("/logs", r.logHandler.LogViewer)

	// API v1 routes
	api := r.app.Group("/api/v1")
	{
		logs := api.Group("/logs")
		{
			logs.Get("", r.logHandler.GetLogs)
			logs.Get("/search", r.logHandler.SearchLogs)
			logs.Get("/:id", r.logHandler.GetLog)
		}

		// Tracked sample routes
		h := r.sampleHandler
		sample := api.Group("/sample", middleware.Identify(UserHeader))
		{
			sample.Get("/json", r.track.base, h.JSON)
			sample.Post("/echo", r.track.base, h.Echo)
			sample.Post("/raw", r.track.raw, h.Message)
			sample.Get("/sensitive", r.track.sensitive, h.Sensitive)
			sample.Get("/stream", r.track.base, h.Stream)
			sample.Get("/error", r.track.base, h.Error)
			sample.Get("/status", r.track.base, h.Status)
			sample.Get("/panic", r.track.base, h.Panic)
			sample.Get("/errors-only", r.track.errorsOnly, h.Status)

			for _, method := range []string{fiber.MethodGet, fiber.MethodPost} {
				sample.Add(method, "/post-only", r.track.postOnly, h.Message)
				sample.Add(method, "/custom", r.track.custom, h.Message)
				sample.Add(method, "/slow", r.track.slow, h.Slow)
			}
		}
	}

	return r.app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": err.Error(),
		"error": fiber.Map{
			"code":    code,
			"message": err.Error(),
		},
	})
}
