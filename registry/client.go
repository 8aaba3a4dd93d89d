package registry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/zero-day-ai/rsg/rsgerr"
)

// ErrClosed is returned by operations on a closed Client.
var ErrClosed = errors.New("registry client is closed")

// Client registers and discovers replicas in etcd.
//
// Registration holds a lease that a background goroutine renews every
// Config.KeepAlive. Thread-safety: all methods are safe for concurrent use.
type Client struct {
	kv      clientv3.KV
	lease   clientv3.Lease
	watcher clientv3.Watcher
	closeFn func() error

	cfg    Config
	logger *slog.Logger

	mu         sync.RWMutex
	leases     map[string]clientv3.LeaseID // replica name -> lease
	cancelFns  map[string]context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	closedChan chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient connects to the etcd cluster in cfg and checks that it answers.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	etcdCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsCfg, err := loadTLS(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		etcdCfg.TLS = tlsCfg
	}

	cli, err := clientv3.New(etcdCfg)
	if err != nil {
		return nil, rsgerr.Wrap("registry.NewClient", rsgerr.KindTransport, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if _, err := cli.Get(ctx, "/"+cfg.Namespace+"/health-check"); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		_ = cli.Close()
		return nil, rsgerr.Wrap("registry.NewClient", rsgerr.KindTransport, fmt.Errorf("etcd health check failed: %w", err))
	}

	return newClient(cli.KV, cli.Lease, cli.Watcher, cli.Close, cfg, opts...), nil
}

func newClient(kv clientv3.KV, lease clientv3.Lease, watcher clientv3.Watcher, closeFn func() error, cfg Config, opts ...Option) *Client {
	c := &Client{
		kv:         kv,
		lease:      lease,
		watcher:    watcher,
		closeFn:    closeFn,
		cfg:        cfg.withDefaults(),
		logger:     slog.Default(),
		leases:     make(map[string]clientv3.LeaseID),
		cancelFns:  make(map[string]context.CancelFunc),
		closedChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "registry", "namespace", c.cfg.Namespace)
	return c
}

// Register publishes r under a fresh lease and starts renewing it.
// Registering the same name again replaces the entry and its lease.
func (c *Client) Register(ctx context.Context, r Replica) (Replica, error) {
	const op = "registry.Register"
	r, err := r.normalize()
	if err != nil {
		return r, rsgerr.New(op, rsgerr.KindSyntax, "%v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return r, ErrClosed
	}

	if cancel, ok := c.cancelFns[r.Name]; ok {
		cancel()
		delete(c.cancelFns, r.Name)
	}

	grant, err := c.lease.Grant(ctx, int64(c.cfg.TTL))
	if err != nil {
		return r, rsgerr.Wrap(op, rsgerr.KindTransport, fmt.Errorf("failed to create lease: %w", err))
	}

	data, err := json.Marshal(r)
	if err != nil {
		return r, rsgerr.Wrap(op, rsgerr.KindEncode, err)
	}
	if _, err := c.kv.Put(ctx, c.key(r.Name), string(data), clientv3.WithLease(grant.ID)); err != nil {
		return r, rsgerr.Wrap(op, rsgerr.KindTransport, fmt.Errorf("failed to register replica: %w", err))
	}
	c.leases[r.Name] = grant.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	c.cancelFns[r.Name] = cancel
	c.wg.Add(1)
	go c.keepalive(keepaliveCtx, grant.ID, r.Name)

	c.logger.Info("replica registered", "replica", r.Name, "root", r.RootID, "lease", int64(grant.ID))
	return r, nil
}

// Deregister removes the replica entry and revokes its lease.
// Unknown names are a no-op.
func (c *Client) Deregister(ctx context.Context, name string) error {
	const op = "registry.Deregister"
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if cancel, ok := c.cancelFns[name]; ok {
		cancel()
		delete(c.cancelFns, name)
	}
	leaseID, ok := c.leases[name]
	if !ok {
		return nil
	}
	delete(c.leases, name)

	if _, err := c.kv.Delete(ctx, c.key(name)); err != nil {
		return rsgerr.Wrap(op, rsgerr.KindTransport, err)
	}
	if _, err := c.lease.Revoke(ctx, leaseID); err != nil {
		return rsgerr.Wrap(op, rsgerr.KindTransport, fmt.Errorf("failed to revoke lease: %w", err))
	}
	c.logger.Info("replica deregistered", "replica", name)
	return nil
}

// Discover returns every registered replica ordered by name. Entries that
// cannot be decoded are skipped.
func (c *Client) Discover(ctx context.Context) ([]Replica, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	resp, err := c.kv.Get(ctx, c.prefix(), clientv3.WithPrefix())
	if err != nil {
		return nil, rsgerr.Wrap("registry.Discover", rsgerr.KindTransport, err)
	}

	replicas := make([]Replica, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var r Replica
		if err := json.Unmarshal(kv.Value, &r); err != nil {
			c.logger.Warn("skipping malformed replica entry", "key", string(kv.Key), "error", err)
			continue
		}
		replicas = append(replicas, r)
	}
	sort.Slice(replicas, func(i, j int) bool { return replicas[i].Name < replicas[j].Name })
	return replicas, nil
}

// Watch sends the current replica list immediately and again after every
// change under the namespace. The channel is closed when ctx is done, the
// watch fails or the client is closed.
func (c *Client) Watch(ctx context.Context) (<-chan []Replica, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	// Watch before the initial read so no change falls between the two.
	watchCtx, cancel := context.WithCancel(ctx)
	watchChan := c.watcher.Watch(watchCtx, c.prefix(), clientv3.WithPrefix())

	initial, err := c.Discover(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		cancel()
		return nil, ErrClosed
	}

	ch := make(chan []Replica, 1)
	ch <- initial

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closedChan:
				return
			case resp, ok := <-watchChan:
				if !ok {
					return
				}
				if err := resp.Err(); err != nil {
					c.logger.Warn("registry watch failed", "error", err)
					return
				}

				replicas, err := c.Discover(ctx)
				if err != nil {
					c.logger.Debug("skipping replica update", "error", err)
					continue
				}
				select {
				case ch <- replicas:
				case <-ctx.Done():
					return
				case <-c.closedChan:
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close stops keepalives and watches and closes the etcd connection.
// Registered entries expire with their leases.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, cancel := range c.cancelFns {
		cancel()
	}
	c.cancelFns = make(map[string]context.CancelFunc)
	close(c.closedChan)
	c.mu.Unlock()

	c.wg.Wait()
	if c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

// keepalive renews leaseID until ctx is canceled, the client closes or the
// lease is lost.
func (c *Client) keepalive(ctx context.Context, leaseID clientv3.LeaseID, name string) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closedChan:
			return
		case <-ticker.C:
			if _, err := c.lease.KeepAliveOnce(ctx, leaseID); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("replica lease lost", "replica", name, "error", err)
				c.mu.Lock()
				if c.leases[name] == leaseID {
					delete(c.leases, name)
					delete(c.cancelFns, name)
				}
				c.mu.Unlock()
				return
			}
		}
	}
}

// prefix is /{namespace}/replicas/.
func (c *Client) prefix() string {
	return fmt.Sprintf("/%s/replicas/", c.cfg.Namespace)
}

func (c *Client) key(name string) string {
	return c.prefix() + name
}

// loadTLS builds a mutual TLS client configuration.
func loadTLS(cfg *TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}
	caData, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caData) {
		return nil, errors.New("failed to parse CA certificate")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
