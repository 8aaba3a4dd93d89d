package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/goleak"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/scene"
	"github.com/zero-day-ai/rsg/types"
)

// fakeEtcd is an in-memory stand-in for the parts of etcd the client uses.
type fakeEtcd struct {
	mu            sync.Mutex
	data          map[string]string
	nextLease     int64
	revoked       []clientv3.LeaseID
	keepalives    int
	failKeepAlive bool
	watchers      []chan clientv3.WatchResponse
}

func newFakeEtcd() *fakeEtcd {
	return &fakeEtcd{data: make(map[string]string)}
}

func (e *fakeEtcd) client(cfg Config) *Client {
	closeFn := func() error { return nil }
	return newClient(fakeKV{e: e}, fakeLease{e: e}, fakeWatcher{e: e}, closeFn, cfg, WithLogger(quietLogger()))
}

func (e *fakeEtcd) changed() {
	for _, w := range e.watchers {
		select {
		case w <- clientv3.WatchResponse{}:
		default:
		}
	}
}

func (e *fakeEtcd) keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.data))
	for k := range e.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e *fakeEtcd) keepaliveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keepalives
}

type fakeKV struct {
	clientv3.KV
	e *fakeEtcd
}

func (k fakeKV) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	k.e.mu.Lock()
	defer k.e.mu.Unlock()
	k.e.data[key] = val
	k.e.changed()
	return &clientv3.PutResponse{}, nil
}

// Get always performs a prefix read.
func (k fakeKV) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	k.e.mu.Lock()
	defer k.e.mu.Unlock()
	resp := &clientv3.GetResponse{}
	for name, val := range k.e.data {
		if strings.HasPrefix(name, key) {
			resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(name), Value: []byte(val)})
		}
	}
	return resp, nil
}

func (k fakeKV) Delete(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	k.e.mu.Lock()
	defer k.e.mu.Unlock()
	delete(k.e.data, key)
	k.e.changed()
	return &clientv3.DeleteResponse{}, nil
}

type fakeLease struct {
	clientv3.Lease
	e *fakeEtcd
}

func (l fakeLease) Grant(_ context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error) {
	l.e.mu.Lock()
	defer l.e.mu.Unlock()
	l.e.nextLease++
	return &clientv3.LeaseGrantResponse{ID: clientv3.LeaseID(l.e.nextLease), TTL: ttl}, nil
}

func (l fakeLease) Revoke(_ context.Context, leaseID clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	l.e.mu.Lock()
	defer l.e.mu.Unlock()
	l.e.revoked = append(l.e.revoked, leaseID)
	return &clientv3.LeaseRevokeResponse{}, nil
}

func (l fakeLease) KeepAliveOnce(_ context.Context, leaseID clientv3.LeaseID) (*clientv3.LeaseKeepAliveResponse, error) {
	l.e.mu.Lock()
	defer l.e.mu.Unlock()
	if l.e.failKeepAlive {
		return nil, errors.New("requested lease not found")
	}
	l.e.keepalives++
	return &clientv3.LeaseKeepAliveResponse{ID: leaseID}, nil
}

type fakeWatcher struct {
	clientv3.Watcher
	e *fakeEtcd
}

func (w fakeWatcher) Watch(_ context.Context, _ string, _ ...clientv3.OpOption) clientv3.WatchChan {
	w.e.mu.Lock()
	defer w.e.mu.Unlock()
	ch := make(chan clientv3.WatchResponse, 8)
	w.e.watchers = append(w.e.watchers, ch)
	return ch
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{Endpoints: []string{"localhost:2379"}}},
		{name: "no endpoints", cfg: Config{}, wantErr: "endpoints cannot be empty"},
		{name: "negative ttl", cfg: Config{Endpoints: []string{"e"}, TTL: -1}, wantErr: "ttl must not be negative"},
		{name: "tls without cert", cfg: Config{Endpoints: []string{"e"}, TLS: &TLSConfig{Enabled: true}}, wantErr: "cert file"},
		{name: "tls disabled", cfg: Config{Endpoints: []string{"e"}, TLS: &TLSConfig{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	cfg := Config{TTL: 9}.withDefaults()
	assert.Equal(t, DefaultNamespace, cfg.Namespace)
	assert.Equal(t, 3*time.Second, cfg.KeepAlive)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)

	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestRootFor(t *testing.T) {
	assert.Equal(t, RootFor("arm"), RootFor("arm"))
	assert.NotEqual(t, RootFor("arm"), RootFor("base"))
	assert.False(t, RootFor("arm").IsRoot())

	r, err := Replica{Name: "arm"}.normalize()
	require.NoError(t, err)
	assert.Equal(t, RootFor("arm"), r.RootID)
	assert.False(t, r.StartedAt.IsZero())

	_, err = Replica{}.normalize()
	assert.Error(t, err)
	_, err = Replica{Name: "arm", RootID: id.Root}.normalize()
	assert.Error(t, err)
}

func TestClient_RegisterDiscover(t *testing.T) {
	ctx := context.Background()
	etcd := newFakeEtcd()
	c := etcd.client(Config{Namespace: "lab", KeepAlive: time.Hour})
	defer c.Close()

	custom := id.MustParse("7a000000-0000-4000-8000-000000000001")
	_, err := c.Register(ctx, Replica{Name: "base", RootID: custom, Attributes: types.Attrs("site", "lab")})
	require.NoError(t, err)
	arm, err := c.Register(ctx, Replica{Name: "arm"})
	require.NoError(t, err)
	assert.Equal(t, RootFor("arm"), arm.RootID)

	assert.Equal(t, []string{"/lab/replicas/arm", "/lab/replicas/base"}, etcd.keys())

	var stored Replica
	require.NoError(t, json.Unmarshal([]byte(etcd.data["/lab/replicas/base"]), &stored))
	assert.Equal(t, custom, stored.RootID)
	assert.True(t, stored.Attributes.Has("site", "lab"))

	replicas, err := c.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, replicas, 2)
	assert.Equal(t, "arm", replicas[0].Name)
	assert.Equal(t, "base", replicas[1].Name)

	// Malformed entries are skipped.
	etcd.data["/lab/replicas/broken"] = "{"
	replicas, err = c.Discover(ctx)
	require.NoError(t, err)
	assert.Len(t, replicas, 2)
	delete(etcd.data, "/lab/replicas/broken")

	require.NoError(t, c.Deregister(ctx, "arm"))
	assert.Equal(t, []string{"/lab/replicas/base"}, etcd.keys())
	assert.Equal(t, []clientv3.LeaseID{2}, etcd.revoked)
	assert.NoError(t, c.Deregister(ctx, "arm"), "unknown names are a no-op")

	_, err = c.Register(ctx, Replica{})
	assert.Error(t, err)
}

func TestClient_KeepAlive(t *testing.T) {
	ctx := context.Background()
	etcd := newFakeEtcd()
	c := etcd.client(Config{KeepAlive: 5 * time.Millisecond})
	defer c.Close()

	_, err := c.Register(ctx, Replica{Name: "arm"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return etcd.keepaliveCount() >= 2 }, 5*time.Second, 5*time.Millisecond)

	etcd.mu.Lock()
	etcd.failKeepAlive = true
	etcd.mu.Unlock()

	require.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		_, ok := c.leases["arm"]
		return !ok
	}, 5*time.Second, 5*time.Millisecond)
}

func TestClient_Close(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	ctx := context.Background()
	etcd := newFakeEtcd()
	c := etcd.client(Config{KeepAlive: time.Millisecond})

	_, err := c.Register(ctx, Replica{Name: "arm"})
	require.NoError(t, err)
	updates, err := c.Watch(ctx)
	require.NoError(t, err)
	<-updates

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	for range updates {
	}

	_, err = c.Register(ctx, Replica{Name: "base"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Discover(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Watch(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Deregister(ctx, "arm"), ErrClosed)

	goleak.VerifyNone(t, ignore)
}

func TestFederation_Sync(t *testing.T) {
	ctx := context.Background()
	etcd := newFakeEtcd()
	peer := etcd.client(Config{KeepAlive: time.Hour})
	defer peer.Close()
	local := etcd.client(Config{KeepAlive: time.Hour})
	defer local.Close()

	_, err := peer.Register(ctx, Replica{Name: "arm", Attributes: types.Attrs("kind", "manipulator")})
	require.NoError(t, err)
	_, err = local.Register(ctx, Replica{Name: "base"})
	require.NoError(t, err)

	store := scene.New(scene.WithLogger(quietLogger()))
	fed := NewFederation(local, Replica{Name: "base"}, store)

	added, err := fed.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, []id.ID{RootFor("arm")}, store.GetRemoteRootNodes(ctx))
	assert.Equal(t, map[string]id.ID{"arm": RootFor("arm")}, fed.Known())

	attrs, err := store.GetNodeAttributes(ctx, RootFor("arm"))
	require.NoError(t, err)
	assert.True(t, attrs.Has(ReplicaAttribute, "arm"))
	assert.True(t, attrs.Has("kind", "manipulator"))

	added, err = fed.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, added)

	// A departed replica is forgotten but its remote root stays.
	require.NoError(t, peer.Deregister(ctx, "arm"))
	_, err = fed.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, fed.Known())
	assert.Equal(t, []id.ID{RootFor("arm")}, store.GetRemoteRootNodes(ctx))

	// Rejoining finds the existing remote root.
	_, err = peer.Register(ctx, Replica{Name: "arm"})
	require.NoError(t, err)
	added, err = fed.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Contains(t, fed.Known(), "arm")
}

func TestFederation_Run(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	etcd := newFakeEtcd()
	local := etcd.client(Config{KeepAlive: time.Hour})
	peer := etcd.client(Config{KeepAlive: time.Hour})

	store := scene.New(scene.WithLogger(quietLogger()))
	fed := NewFederation(local, Replica{Name: "base"}, store)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- fed.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, k := range etcd.keys() {
			if k == "/rsg/replicas/base" {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	_, err := peer.Register(context.Background(), Replica{Name: "gripper"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(store.GetRemoteRootNodes(context.Background())) == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, RootFor("gripper"), store.GetRemoteRootNodes(context.Background())[0])

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("federation did not stop")
	}
	assert.Equal(t, []string{"/rsg/replicas/gripper"}, etcd.keys())

	require.NoError(t, local.Close())
	require.NoError(t, peer.Close())
	goleak.VerifyNone(t, ignore)
}
