package web

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/mso4sc/experiments/pkg/lifecycle"
	"github.com/mso4sc/experiments/pkg/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services are the operations the API exposes.
type Services struct {
	Applications *services.Applications
	Instances    *services.Instances
	Executions   *services.Executions
	Credentials  *services.Credentials
}

type API struct {
	services   Services
	dispatcher lifecycle.Dispatcher
	health     HealthChecker
	registry   *prometheus.Registry
	validate   *validator.Validate
	app        *fiber.App
}

func NewAPI(
	svc Services,
	dispatcher lifecycle.Dispatcher,
	health HealthChecker,
	registry *prometheus.Registry,
) *API {
	return &API{
		services:   svc,
		dispatcher: dispatcher,
		health:     health,
		registry:   registry,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	if a.app != nil {
		return a.app
	}

	handlers := NewAPIHandlers(
		a.services.Applications,
		a.services.Instances,
		a.services.Executions,
		a.services.Credentials,
		a.dispatcher,
		a.health,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Experiments API")
	})

	app.Get("/health", handlers.HealthCheck)

	if a.registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}

	apps := app.Group("/applications", RequireOwner)
	apps.Get("/", handlers.GetApplications)
	apps.Post("/", handlers.CreateApplication)
	apps.Get("/:id", handlers.GetApplication)
	apps.Get("/:id/inputs", handlers.GetApplicationInputs)
	apps.Delete("/:id", handlers.DeleteApplication)

	instances := app.Group("/instances", RequireOwner)
	instances.Get("/", handlers.GetInstances)
	instances.Post("/", handlers.CreateInstance)
	instances.Get("/:id", handlers.GetInstance)
	instances.Get("/:id/events", handlers.GetInstanceEvents)
	instances.Get("/:id/executions", handlers.GetInstanceExecutions)
	instances.Post("/:id/run", handlers.RunInstance)
	instances.Post("/:id/reset", handlers.ResetInstance)
	instances.Delete("/:id", handlers.DeleteInstance)

	tunnels := app.Group("/tunnels", RequireOwner)
	tunnels.Get("/", handlers.GetTunnels)
	tunnels.Post("/", handlers.CreateTunnel)
	tunnels.Get("/:id", handlers.GetTunnel)
	tunnels.Delete("/:id", handlers.DeleteTunnel)

	hpcs := app.Group("/hpcs", RequireOwner)
	hpcs.Get("/", handlers.GetHPCs)
	hpcs.Post("/", handlers.CreateHPC)
	hpcs.Get("/:id", handlers.GetHPC)
	hpcs.Delete("/:id", handlers.DeleteHPC)

	catalogue := app.Group("/datacatalogue-key", RequireOwner)
	catalogue.Get("/", handlers.GetDataCatalogueKey)
	catalogue.Post("/", handlers.CreateDataCatalogueKey)
	catalogue.Put("/", handlers.UpdateDataCatalogueKey)
	catalogue.Delete("/", handlers.DeleteDataCatalogueKey)

	a.app = app

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}

func (a *API) Shutdown() error {
	if a.app == nil {
		return nil
	}

	return a.app.Shutdown()
}
