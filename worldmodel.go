package rsg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zero-day-ai/rsg/codec/jsoncodec"
	"github.com/zero-day-ai/rsg/codec/protocodec"
	"github.com/zero-day-ai/rsg/config"
	"github.com/zero-day-ai/rsg/filter"
	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/journal"
	"github.com/zero-day-ai/rsg/query"
	"github.com/zero-day-ai/rsg/queue"
	"github.com/zero-day-ai/rsg/registry"
	"github.com/zero-day-ai/rsg/rsgerr"
	"github.com/zero-day-ai/rsg/scene"
	"github.com/zero-day-ai/rsg/update"
)

// WorldModel is one scene graph replica with its adapters attached.
type WorldModel struct {
	cfg    *config.Config
	logger *slog.Logger

	store  *scene.Store
	runner *query.Runner

	journal    *journal.Journal
	subscriber *queue.Subscriber
	federation *registry.Federation

	// closers are released in reverse order by Close.
	closers []namedCloser
	once    sync.Once
	err     error
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// New builds a replica from its configuration. A configured journal is
// replayed into the store before any other adapter is attached.
func New(ctx context.Context, opts ...Option) (*WorldModel, error) {
	const op = "rsg.New"

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := resolveConfig(&o)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, rsgerr.Wrap(op, rsgerr.KindSyntax, fmt.Errorf("invalid configuration: %w", err))
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.GetLogLevel()}))
	}
	logger = logger.With("replica", cfg.Replica)

	dispatcher := update.NewDispatcher(
		update.WithLogger(logger),
		update.WithTracer(o.tracer),
		update.WithMeterProvider(o.meter),
	)
	storeOpts := []scene.Option{
		scene.WithLogger(logger),
		scene.WithDispatcher(dispatcher),
		scene.WithTracer(o.tracer),
	}
	if o.generator != nil {
		storeOpts = append(storeOpts, scene.WithGenerator(o.generator))
	}

	wm := &WorldModel{
		cfg:    cfg,
		logger: logger.With("component", "rsg"),
		store:  scene.New(storeOpts...),
	}

	input, output, err := compileFilters(cfg.Filters)
	if err != nil {
		return nil, err
	}

	runnerOpts := []query.Option{query.WithLogger(logger), query.WithTracer(o.tracer)}
	if input != nil {
		runnerOpts = append(runnerOpts, query.WithUpdateTarget(input.Target(wm.store, logger)))
	}
	wm.runner = query.NewRunner(wm.store, runnerOpts...)

	steps := []func(context.Context, *options) error{
		wm.attachJournal,
		func(ctx context.Context, o *options) error { return wm.attachRedis(ctx, o, output) },
		wm.attachRegistry,
	}
	for _, step := range steps {
		if err := step(ctx, &o); err != nil {
			_ = wm.Close()
			return nil, err
		}
	}

	wm.logger.Info("world model ready",
		"observers", dispatcher.Len(),
		"journal", wm.journal != nil,
		"subscriber", wm.subscriber != nil,
		"federation", wm.federation != nil,
	)
	return wm, nil
}

func resolveConfig(o *options) (*config.Config, error) {
	if o.config != nil {
		return o.config, nil
	}
	if o.configPath == "" {
		return nil, rsgerr.New("rsg.New", rsgerr.KindSyntax, "no configuration given")
	}
	info, err := os.Stat(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config path: %w", err)
	}
	var cfg *config.Config
	if info.IsDir() {
		cfg, err = config.LoadFromDir(o.configPath)
	} else {
		cfg, err = config.Load(o.configPath)
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func compileFilters(fc *config.FilterConfig) (input, output *filter.Filter, err error) {
	if fc == nil {
		return nil, nil, nil
	}
	if fc.Input != "" {
		if input, err = filter.Compile(fc.Input); err != nil {
			return nil, nil, rsgerr.Wrap("rsg.New", rsgerr.KindSyntax, err)
		}
	}
	if fc.Output != "" {
		if output, err = filter.Compile(fc.Output); err != nil {
			return nil, nil, rsgerr.Wrap("rsg.New", rsgerr.KindSyntax, err)
		}
	}
	return input, output, nil
}

// attachJournal opens the journal, replays it and starts recording.
func (wm *WorldModel) attachJournal(ctx context.Context, _ *options) error {
	jc := wm.cfg.Journal
	if jc == nil {
		return nil
	}

	j, err := journal.Open(journal.Config{
		Path:       jc.Path,
		InMemory:   jc.InMemory,
		SyncWrites: jc.SyncWrites,
		Prefix:     journal.DefaultPrefix + wm.cfg.Replica + "/",
		Logger:     wm.logger,
	})
	if err != nil {
		return err
	}
	wm.journal = j
	wm.closers = append(wm.closers, namedCloser{"journal", j})

	if jc.ReplayEnabled() {
		if _, err := j.Replay(ctx, wm.store); err != nil {
			return fmt.Errorf("replay journal: %w", err)
		}
	}
	wm.store.Dispatcher().Register(jsoncodec.NewEncoder(j, jsoncodec.WithLogger(wm.logger)), update.WithName("journal"))
	return nil
}

// attachRedis registers the Redis encoders and prepares the subscriber.
func (wm *WorldModel) attachRedis(_ context.Context, o *options, output *filter.Filter) error {
	rc := wm.cfg.Redis
	if rc == nil {
		return nil
	}

	client := o.redis
	if client == nil {
		rclient, err := queue.NewRedisClient(queue.RedisOptions{URL: rc.URL, Logger: wm.logger})
		if err != nil {
			return err
		}
		client = rclient
		wm.closers = append(wm.closers, namedCloser{"redis", rclient})
	}

	outbound := func(name string, obs update.Observer) {
		if output != nil {
			obs = output.Observer(obs, wm.logger)
		}
		wm.store.Dispatcher().Register(update.LocalOnly(obs), update.WithName(name))
	}

	if wm.cfg.Codec.JSONEnabled() {
		p, err := queue.NewPort(client, queue.PortOptions{
			Replica: wm.cfg.Replica,
			Channel: rc.Channel,
			List:    rc.List,
			Format:  queue.FormatJSON,
			Timeout: rc.GetTimeout(),
			Logger:  wm.logger,
		})
		if err != nil {
			return err
		}
		outbound("redis", jsoncodec.NewEncoder(p, jsoncodec.WithLogger(wm.logger), jsoncodec.WithIndent(wm.cfg.Codec != nil && wm.cfg.Codec.Indent)))
	}

	if wm.cfg.Codec.BinaryEnabled() {
		p, err := queue.NewPort(client, queue.PortOptions{
			Replica: wm.cfg.Replica,
			Channel: rc.BinaryChannel,
			Format:  queue.FormatBinary,
			Timeout: rc.GetTimeout(),
			Logger:  wm.logger,
		})
		if err != nil {
			return err
		}
		outbound("redis-binary", protocodec.NewEncoder(p, protocodec.WithLogger(wm.logger)))
	}

	if rc.Subscribe {
		sub, err := queue.NewSubscriber(client, wm.runner, queue.SubscriberOptions{
			Replica:           wm.cfg.Replica,
			Channel:           rc.Channel,
			List:              rc.List,
			ReplyChannel:      rc.ReplyChannel,
			HeartbeatInterval: rc.GetHeartbeatInterval(),
			Logger:            wm.logger,
		})
		if err != nil {
			return err
		}
		wm.subscriber = sub
	}
	return nil
}

// attachRegistry prepares etcd federation.
func (wm *WorldModel) attachRegistry(_ context.Context, o *options) error {
	rc := wm.cfg.Registry
	if rc == nil {
		return nil
	}

	self := registry.Replica{Name: wm.cfg.Replica}
	if rc.RootID != "" {
		rootID, err := id.Parse(rc.RootID)
		if err != nil {
			return rsgerr.Wrap("rsg.New", rsgerr.KindSyntax, fmt.Errorf("registry.root_id: %w", err))
		}
		self.RootID = rootID
	}

	client := o.registry
	if client == nil {
		regCfg := registry.Config{
			Endpoints: rc.Endpoints,
			Namespace: rc.GetNamespace(),
			TTL:       rc.GetTTL(),
		}
		if rc.TLS != nil {
			regCfg.TLS = &registry.TLSConfig{Enabled: true, CertFile: rc.TLS.CertFile, KeyFile: rc.TLS.KeyFile, CAFile: rc.TLS.CAFile}
		}
		rclient, err := registry.NewClient(regCfg, registry.WithLogger(wm.logger))
		if err != nil {
			return err
		}
		client = rclient
		wm.closers = append(wm.closers, namedCloser{"registry", rclient})
	}
	wm.federation = registry.NewFederation(client, self, wm.store)
	return nil
}

// Store returns the scene graph.
func (wm *WorldModel) Store() *scene.Store {
	return wm.store
}

// Runner returns the query runner over the store.
func (wm *WorldModel) Runner() *query.Runner {
	return wm.runner
}

// Config returns the effective configuration.
func (wm *WorldModel) Config() *config.Config {
	return wm.cfg
}

// Journal returns the update journal, or nil when none is configured.
func (wm *WorldModel) Journal() *journal.Journal {
	return wm.journal
}

// Federation returns the etcd federation, or nil when none is configured.
func (wm *WorldModel) Federation() *registry.Federation {
	return wm.federation
}

// Query answers one RSGQuery or RSGUpdate message.
func (wm *WorldModel) Query(ctx context.Context, msg []byte) []byte {
	return wm.runner.RunJSON(ctx, msg)
}

// Run drives the subscriber and the federation until ctx is done or one
// of them fails. Without either it just waits for ctx.
func (wm *WorldModel) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if wm.subscriber != nil {
		g.Go(func() error { return wm.subscriber.Run(gctx) })
	}
	if wm.federation != nil {
		g.Go(func() error { return wm.federation.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	wm.logger.Info("world model running")
	err := g.Wait()
	wm.logger.Info("world model stopped", "error", err)
	return err
}

// Close releases the journal and the connections the WorldModel opened.
// It is safe to call more than once.
func (wm *WorldModel) Close() error {
	wm.once.Do(func() {
		var errs []error
		for i := len(wm.closers) - 1; i >= 0; i-- {
			c := wm.closers[i]
			if err := c.closer.Close(); err != nil {
				wm.logger.Warn("failed to close resource", "resource", c.name, "error", err)
				errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			}
		}
		wm.err = errors.Join(errs...)
	})
	return wm.err
}
