package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/flowops/admin"
	"github.com/jonwraymond/flowops/cache"
	"github.com/jonwraymond/flowops/config"
	"github.com/jonwraymond/flowops/events"
	"github.com/jonwraymond/flowops/health"
	"github.com/jonwraymond/flowops/metrics"
	"github.com/jonwraymond/flowops/observe"
	"github.com/jonwraymond/flowops/resilience"
	"github.com/jonwraymond/flowops/routing"
	"github.com/jonwraymond/flowops/workflow"
)

// Orchestrator owns every runtime component built from one configuration.
type Orchestrator struct {
	cfg    config.Config
	policy resilience.RetryPolicy
	now    func() time.Time

	bus       *events.Bus
	collector *metrics.Collector
	breakers  *resilience.Registry
	health    *health.Registry
	retrier   *resilience.Retrier
	executor  *resilience.Executor
	router    *routing.Router
	engine    *workflow.Engine
	store     *cache.Store

	observer observe.Observer
	obs      *observe.Middleware
	logger   observe.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
	stopped bool
}

// New builds an Orchestrator. Components are wired but background loops only
// run after Start.
func New(cfg config.Config, invoker routing.Invoker, opts ...Option) (*Orchestrator, error) {
	o := &options{probes: make(map[string]health.Checker)}
	for _, opt := range opts {
		opt(o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	cfg.ApplyDefaults()
	if o.secrets != nil {
		if err := cfg.ResolveSecrets(context.Background(), o.secrets); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := cfg.RetryPolicy()
	if err != nil {
		return nil, err
	}

	orch := &Orchestrator{
		cfg:    cfg,
		policy: policy,
		now:    o.now,
	}
	if err := orch.setupTelemetry(o); err != nil {
		return nil, err
	}

	orch.bus = events.NewBus(events.WithPanicHandler(orch.onSubscriberPanic))
	orch.collector = metrics.NewCollector(metrics.WithClock(o.now))

	bc := cfg.BreakerConfig()
	bc.Now = o.now
	bc.OnStateChange = orch.onBreakerChange
	orch.breakers = resilience.NewRegistry(bc)

	hc := cfg.HealthConfig()
	hc.Now = o.now
	hc.OnChange = orch.onHealthChange
	orch.health = health.NewRegistry(hc)
	for _, inst := range cfg.Services {
		if inst.Enabled {
			orch.health.Register(inst.ID, o.probes[inst.ID])
		}
	}

	orch.retrier = resilience.NewRetrier(resilience.RetrierConfig{
		Recorder: orch.collector,
		OnRetry:  orch.onRetry,
		Sleep:    o.sleep,
	})
	orch.executor = resilience.NewExecutor(
		resilience.WithBreakers(orch.breakers),
		resilience.WithRetrier(orch.retrier),
	)

	var responses *cache.Middleware
	if cfg.Cache.Enabled {
		store := o.cache
		if store == nil {
			orch.store, err = cache.NewStore(cfg.StoreConfig())
			if err != nil {
				return nil, fmt.Errorf("orchestrator: response cache: %w", err)
			}
			store = orch.store
		}
		responses = cache.NewMiddleware(store, nil, cfg.CachePolicy())
	}

	rc, err := cfg.RouterConfig()
	if err != nil {
		return nil, err
	}
	rc.Now = o.now
	orch.router, err = routing.New(rc, invoker,
		routing.WithBreakers(orch.breakers),
		routing.WithRetrier(orch.retrier),
		routing.WithHealth(orch.health),
		routing.WithRecorder(orch.collector),
		routing.WithCache(responses),
		routing.WithObserver(orch.obs),
		routing.WithPublisher(orch.bus),
	)
	if err != nil {
		return nil, err
	}

	defs, err := cfg.WorkflowDefinitions()
	if err != nil {
		return nil, err
	}
	engineOpts := []workflow.Option{
		workflow.WithAvailability(orch.router),
		workflow.WithPublisher(orch.bus),
		workflow.WithObserver(orch.obs),
	}
	if o.gauges != nil {
		engineOpts = append(engineOpts, workflow.WithGauges(o.gauges))
	}
	orch.engine, err = workflow.NewEngine(orch.router, workflow.Config{
		Definitions: defs,
		Now:         o.now,
		Sleep:       o.sleep,
	}, engineOpts...)
	if err != nil {
		return nil, err
	}

	orch.bus.Subscribe(orch.logEvent)
	return orch, nil
}

func (o *Orchestrator) setupTelemetry(opts *options) error {
	if opts.observer == nil {
		oc := o.cfg.ObserveConfig()
		if oc.Tracing.Enabled || oc.Metrics.Enabled || oc.Logging.Enabled {
			observer, err := observe.NewObserver(context.Background(), oc)
			if err != nil {
				return fmt.Errorf("orchestrator: telemetry: %w", err)
			}
			mw, err := observe.MiddlewareFromObserver(observer)
			if err != nil {
				return err
			}
			o.observer = observer
			opts.observer = mw
		} else {
			opts.observer = observe.NoopMiddleware()
		}
	}
	o.obs = opts.observer

	o.logger = opts.logger
	if o.logger == nil {
		o.logger = o.obs.Logger()
	}
	return nil
}

// Start runs the breaker monitor, the health probe loop and, when an admin
// address is configured, the admin server until ctx is done or Stop is
// called. An Orchestrator cannot be restarted after Stop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started || o.stopped {
		return ErrAlreadyStarted
	}

	var server *admin.Server
	if o.cfg.Admin.Addr != "" {
		h, err := o.AdminHandler()
		if err != nil {
			return err
		}
		server = admin.NewServer(o.cfg.Admin.Addr, h)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.breakers.Run(gctx) })
	g.Go(func() error {
		o.health.ProbeAll(gctx)
		return o.health.Run(gctx)
	})
	if server != nil {
		g.Go(func() error { return server.ListenAndServe(gctx) })
	}

	o.cancel = cancel
	o.group = g
	o.started = true

	o.logger.Info(ctx, "orchestrator started",
		observe.F("services", len(o.cfg.Services)),
		observe.F("workflows", len(o.cfg.Workflows)),
		observe.F("strategy", o.router.Strategy()),
	)
	return nil
}

// Stop cancels the background loops, waits for them and releases the
// response cache and telemetry providers.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return ErrNotStarted
	}
	cancel, g := o.cancel, o.group
	o.started = false
	o.stopped = true
	o.mu.Unlock()

	cancel()
	errs := []error{g.Wait()}

	if o.store != nil {
		o.store.Close()
	}
	if o.observer != nil {
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, o.observer.Shutdown(ctx))
		done()
	}

	o.logger.Info(context.Background(), "orchestrator stopped")
	return errors.Join(errs...)
}

// Ready reports whether the loops are running and no service is unhealthy.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	started := o.started
	o.mu.Unlock()
	return started && o.health.Overall() != health.StatusUnhealthy
}

// AdminHandler returns the admin HTTP surface for this orchestrator.
func (o *Orchestrator) AdminHandler() (http.Handler, error) {
	return admin.NewHandler(o, admin.Config{
		Guard: admin.GuardConfig{
			Secret:   []byte(o.cfg.Admin.JWT.Secret),
			Issuer:   o.cfg.Admin.JWT.Issuer,
			Audience: o.cfg.Admin.JWT.Audience,
		},
		Now: o.now,
	})
}

// Router returns the request router.
func (o *Orchestrator) Router() *routing.Router {
	return o.router
}

// Engine returns the workflow engine.
func (o *Orchestrator) Engine() *workflow.Engine {
	return o.engine
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() config.Config {
	return o.cfg
}
