package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/flowgate/internal/gateway/broker"
	"github.com/drblury/flowgate/internal/gateway/pipeline"
	"github.com/drblury/flowgate/internal/gateway/routes"
	"github.com/drblury/flowgate/internal/gateway/server"
	"github.com/drblury/flowgate/internal/gateway/strategy"
	"github.com/drblury/flowgate/internal/gateway/validation"
	configpkg "github.com/drblury/flowgate/internal/runtime/config"
	errspkg "github.com/drblury/flowgate/internal/runtime/errors"
	loggingpkg "github.com/drblury/flowgate/internal/runtime/logging"
	"github.com/drblury/flowgate/transport"
	_ "github.com/drblury/flowgate/transport/transports"
)

// ReplyHandlerName names the router handler consuming the reply topic.
const ReplyHandlerName = "flowgate_replies"

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds optional collaborators. Leave fields zero to use
// the defaults derived from Config.
type ServiceDependencies struct {
	// Transport skips the registry when its Publisher and Subscriber are set.
	Transport *transport.Transport
	// TransportRegistry defaults to transport.DefaultRegistry.
	TransportRegistry *transport.Registry
	// Strategies are registered next to the built-in ones.
	Strategies []strategy.Strategy
	// Routes are installed after the routes file and survive reloads.
	Routes                    []pipeline.Route
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
}

// Service wires the gateway: transport, correlation broker, reply router,
// strategy registry, pipeline and HTTP server.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	caps       transport.Capabilities
	router     *message.Router

	broker     *broker.Broker
	pools      *strategy.HostPools
	strategies *strategy.Registry
	pipeline   *pipeline.Pipeline
	server     *server.Server
	schemas    *validation.Loader
	routeTable routeTable

	metricsRegistry *prometheus.Registry

	closeOnce sync.Once
}

// NewService constructs a Service and panics when any part fails to build.
// Use TryNewService to handle the error instead.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService constructs a Service. Defaults are applied to a copy of conf.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	cfg := conf.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info("Creating gateway service", loggingpkg.LogFields{
		"pubsub_system": cfg.PubSubSystem,
		"config":        cfg,
	})

	s := &Service{
		Conf:            &cfg,
		Logger:          log,
		metricsRegistry: prometheus.NewRegistry(),
	}

	if err := s.buildTransport(ctx, deps); err != nil {
		return nil, err
	}
	if err := s.build(deps); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) buildTransport(ctx context.Context, deps ServiceDependencies) error {
	registry := deps.TransportRegistry
	if registry == nil {
		registry = transport.DefaultRegistry
	}
	s.caps = registry.GetCapabilities(s.Conf.PubSubSystem)

	var t transport.Transport
	if deps.Transport != nil && deps.Transport.Publisher != nil && deps.Transport.Subscriber != nil {
		t = *deps.Transport
	} else {
		built, err := registry.Build(ctx, s.Conf, loggingpkg.NewWatermillAdapter(s.Logger))
		if err != nil {
			return fmt.Errorf("build transport: %w", err)
		}
		t = built
	}
	if t.Publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if t.Subscriber == nil {
		return errspkg.ErrSubscriberRequired
	}
	if p, ok := t.Publisher.(transport.CapabilitiesProvider); ok {
		s.caps = p.Capabilities()
	}
	s.publisher = t.Publisher
	s.subscriber = t.Subscriber
	return nil
}

func (s *Service) build(deps ServiceDependencies) error {
	var err error
	s.broker, err = broker.New(broker.Config{
		ReplyTopic:     s.Conf.ReplyTopic,
		DefaultTopic:   s.Conf.RequestTopic,
		DefaultTimeout: s.Conf.BridgeTimeout,
		MaxMessageSize: s.caps.MaxMessageSize,
	}, s.publisher, s.Logger)
	if err != nil {
		return err
	}
	s.broker.WatchAssignments(s.subscriber)

	s.router, err = message.NewRouter(message.RouterConfig{
		CloseTimeout: s.Conf.ShutdownTimeout,
	}, loggingpkg.NewWatermillAdapter(s.Logger))
	if err != nil {
		return err
	}
	s.router.AddPlugin(plugin.SignalsHandler)
	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return err
	}
	s.router.AddNoPublisherHandler(ReplyHandlerName, s.broker.ReplyTopic(), s.subscriber, s.broker.HandleReply)

	if err := s.buildStrategies(deps.Strategies); err != nil {
		return err
	}

	var opts []pipeline.Option
	if s.Conf.MetricsEnabled {
		s.metricsRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "flowgate_bridge_pending_calls",
				Help: "Bridged calls waiting for a reply.",
			}, func() float64 { return float64(s.broker.Pending()) }),
		)
		opts = append(opts, pipeline.WithMetrics(pipeline.NewMetrics(s.metricsRegistry)))
	}
	s.pipeline, err = pipeline.New(s.strategies, s.Logger, opts...)
	if err != nil {
		return err
	}

	s.routeTable = routeTable{pipeline: s.pipeline, static: slices.Clone(deps.Routes)}
	if s.Conf.SchemaDir != "" {
		s.schemas = validation.NewLoader(s.Conf.SchemaDir)
	}
	if err := s.ReloadRoutes(); err != nil {
		return err
	}

	var metricsHandler http.Handler
	if s.Conf.MetricsEnabled {
		metricsHandler = promhttp.HandlerFor(s.metricsRegistry, promhttp.HandlerOpts{})
	}
	s.server = server.New(s.pipeline, server.Config{
		Address:         s.Conf.ListenAddress,
		ShutdownTimeout: s.Conf.ShutdownTimeout,
		Metrics:         metricsHandler,
		Ready:           s.Ready,
	}, s.Logger)
	return nil
}

// buildStrategies registers base, logging, http and bridge, then extra. The
// bridge is also registered under the transport name when that name is free.
func (s *Service) buildStrategies(extra []strategy.Strategy) error {
	pools, err := strategy.NewHostPools(s.Conf.HTTPMaxHosts, s.Conf.HTTPPoolSize, s.Conf.HTTPTimeout)
	if err != nil {
		return fmt.Errorf("http pools: %w", err)
	}
	s.pools = pools

	builtins := []strategy.Strategy{
		strategy.NewBase("base"),
		strategy.NewLogging("logging", s.Logger),
		strategy.NewHTTP("http", s.pools, s.Logger),
		strategy.NewBridge("bridge", s.broker, s.Logger),
	}
	taken := map[string]bool{}
	for _, st := range slices.Concat(builtins, extra) {
		taken[st.Name()] = true
	}
	all := slices.Concat(builtins, extra)
	if name := s.Conf.PubSubSystem; name != "" && !taken[name] {
		all = append(all, strategy.NewBridge(name, s.broker, s.Logger))
	}

	s.strategies, err = strategy.NewRegistry(all...)
	return err
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// ReloadRoutes re-reads the routes file, if any, and installs it together
// with the routes passed in ServiceDependencies. On error the current table
// stays in place.
func (s *Service) ReloadRoutes() error {
	if s.Conf.RoutesFile == "" {
		return s.routeTable.ReplaceRoutes(nil)
	}
	var source routes.SchemaSource
	if s.schemas != nil {
		source = s.schemas
	}
	return routes.Apply(s.routeTable, s.Conf.RoutesFile, source)
}

// Start runs the reply router, then serves HTTP once the router is running.
// With WatchRoutes set the routes file is reloaded on change. Start returns
// when ctx is cancelled or any part fails.
func (s *Service) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := routerRun(s.router, ctx); err != nil {
			return fmt.Errorf("reply router: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-s.router.Running():
		case <-ctx.Done():
			return nil
		}
		return s.server.Start(ctx)
	})

	if s.Conf.WatchRoutes && s.Conf.RoutesFile != "" {
		g.Go(func() error {
			return routes.Watch(ctx, s.Conf.RoutesFile, s.ReloadRoutes, s.Logger)
		})
	}

	err := g.Wait()
	s.Close()
	return err
}

// Close releases the transport and HTTP pools. It is safe to call more than
// once.
func (s *Service) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.router != nil {
			if err := s.router.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.subscriber != nil {
			if err := s.subscriber.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close subscriber: %w", err))
			}
		}
		if s.publisher != nil && any(s.publisher) != any(s.subscriber) {
			if err := s.publisher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close publisher: %w", err))
			}
		}
		if s.pools != nil {
			s.pools.Close()
		}
	})
	return errors.Join(errs...)
}

// Ready reports whether replies can be addressed to this instance.
func (s *Service) Ready() bool {
	select {
	case <-s.broker.Ready():
		return true
	default:
		return false
	}
}

// Pipeline returns the request pipeline.
func (s *Service) Pipeline() *pipeline.Pipeline { return s.pipeline }

// Broker returns the correlation broker.
func (s *Service) Broker() *broker.Broker { return s.broker }

// Handler returns the gateway HTTP handler, for embedding or tests.
func (s *Service) Handler() http.Handler { return s.server }

// MetricsRegistry returns the registry behind /metrics.
func (s *Service) MetricsRegistry() *prometheus.Registry { return s.metricsRegistry }

// Capabilities returns what the selected transport supports.
func (s *Service) Capabilities() transport.Capabilities { return s.caps }

// routeTable keeps programmatic routes installed across file reloads.
type routeTable struct {
	pipeline *pipeline.Pipeline
	static   []pipeline.Route
}

func (t routeTable) ReplaceRoutes(rs []pipeline.Route) error {
	return t.pipeline.ReplaceRoutes(slices.Concat(rs, t.static))
}
