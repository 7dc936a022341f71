// internal/di/container.go
package di

import (
	"fmt"

	"fleet-monitor/internal/api"
	"fleet-monitor/internal/backend"
	"fleet-monitor/internal/cache"
	"fleet-monitor/internal/classify"
	"fleet-monitor/internal/command"
	"fleet-monitor/internal/config"
	"fleet-monitor/internal/dedup"
	"fleet-monitor/internal/fleet"
	"fleet-monitor/internal/interfaces"
	"fleet-monitor/internal/notify"
	"fleet-monitor/internal/pipeline"
	"fleet-monitor/internal/projection"
	"fleet-monitor/internal/registry"
	"fleet-monitor/internal/utils"
)

// Container wires the whole service together. Construction is staged: core
// services, infrastructure, domain components, then the handler surface.
type Container struct {
	Config *config.Config
	Logger interfaces.Logger

	// Infrastructure
	Backend interfaces.BackendService
	Cache   interfaces.CacheService
	Toaster interfaces.Toaster

	// Domain
	Fleet      *fleet.Store
	Guard      *dedup.Guard
	Classifier *classify.Classifier
	Router     *notify.Router
	Projector  *projection.Projector
	Pipeline   *pipeline.Pipeline
	Registry   *registry.Registry
	OneShot    *registry.OneShotPublisher
	Commands   *command.Service

	// HTTP surface
	Handler *api.Handler
}

func NewContainer(cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	if err := c.initCoreServices(); err != nil {
		return nil, fmt.Errorf("failed to init core services: %w", err)
	}
	c.initInfraServices()
	c.initDomainServices()
	c.initHandlers()

	return c, nil
}

func (c *Container) initCoreServices() error {
	utils.SetupLogger(c.Config.LogLevel)
	c.Logger = utils.Logger
	return nil
}

func (c *Container) initInfraServices() {
	c.Backend = backend.NewClient(c.Config.APIBaseURL)

	// Redis is optional; a single-session deployment runs fine on the
	// in-process cache.
	redisCache, err := cache.NewRedisCache(c.Config)
	if err != nil {
		c.Logger.Warnf("Redis unavailable (%v), using in-memory lookup cache", err)
		c.Cache = cache.NewMemoryCache()
	} else {
		c.Cache = redisCache
	}

	c.Toaster = notify.NewLogToaster(c.Logger)
}

func (c *Container) initDomainServices() {
	c.Fleet = fleet.NewStore(c.Backend, c.Logger)
	c.Guard = dedup.NewGuard(c.Logger)
	c.Classifier = classify.NewClassifier(c.Config.ViewerRole)

	c.Router = notify.NewRouter(
		c.Backend, c.Cache, c.Logger,
		c.Config.ViewerRole, c.Config.ViewerProject,
		c.Config.LookupTTL, c.Config.FeedCapacity,
	)

	c.Projector = projection.NewProjector(
		c.Backend, c.Fleet, c.Guard, c.Router, c.Toaster, c.Logger,
	)

	c.Pipeline = pipeline.NewPipeline(
		c.Classifier, c.Guard, c.Fleet, c.Router, c.Projector, c.Toaster, c.Logger,
	)

	c.Registry = registry.NewRegistry(c.Config, c.Fleet, c.Logger)
	c.Registry.SetHandler(c.Pipeline.HandleMessage)

	c.OneShot = registry.NewOneShotPublisher(
		c.Config.MQTTPort, c.Config.MQTTPublishTimeout, c.Logger,
	)

	c.Commands = command.NewService(
		c.Registry, c.OneShot, c.Fleet, c.Backend,
		c.Guard, c.Router, c.Toaster, c.Logger,
	)
}

func (c *Container) initHandlers() {
	c.Handler = api.NewHandler(c.Registry, c.Fleet, c.Router, c.Commands, c.Logger)
}

// Shutdown stops background work and closes broker connections.
func (c *Container) Shutdown() {
	if c.Registry != nil {
		c.Registry.Shutdown()
	}
	c.Guard.Stop()
	if closer, ok := c.Cache.(*cache.RedisCache); ok {
		_ = closer.Close()
	}
}
