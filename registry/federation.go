package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/rsgerr"
	"github.com/zero-day-ai/rsg/types"
)

// RemoteRoots receives the roots of foreign replicas. *scene.Store
// implements it.
type RemoteRoots interface {
	AddRemoteRootNode(ctx context.Context, rootID id.ID, attrs types.Attributes) error
}

// Federation keeps a store's remote root nodes in line with the replicas
// registered in etcd.
type Federation struct {
	client *Client
	self   Replica
	target RemoteRoots
	logger *slog.Logger

	mu    sync.Mutex
	known map[string]id.ID
}

// NewFederation creates a Federation that registers self and mirrors every
// other replica into target.
func NewFederation(client *Client, self Replica, target RemoteRoots) *Federation {
	return &Federation{
		client: client,
		self:   self,
		target: target,
		logger: client.logger.With("replica", self.Name),
		known:  make(map[string]id.ID),
	}
}

// Known returns the remote roots mirrored so far, keyed by replica name.
func (f *Federation) Known() map[string]id.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]id.ID, len(f.known))
	for name, rootID := range f.known {
		out[name] = rootID
	}
	return out
}

// Sync discovers the registered replicas once and adds a remote root for
// each new one. It returns the number of roots added.
func (f *Federation) Sync(ctx context.Context) (int, error) {
	replicas, err := f.client.Discover(ctx)
	if err != nil {
		return 0, err
	}
	return f.apply(ctx, replicas), nil
}

// Run registers the local replica, then mirrors peers until ctx is done.
// The registration is withdrawn on return.
func (f *Federation) Run(ctx context.Context) error {
	self, err := f.client.Register(ctx, f.self)
	if err != nil {
		return err
	}
	f.self = self
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.client.Deregister(dctx, self.Name); err != nil && !errors.Is(err, ErrClosed) {
			f.logger.Warn("failed to deregister replica", "error", err)
		}
	}()

	updates, err := f.client.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case replicas, ok := <-updates:
			if !ok {
				return nil
			}
			f.apply(ctx, replicas)
		}
	}
}

func (f *Federation) apply(ctx context.Context, replicas []Replica) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	present := make(map[string]bool, len(replicas))
	added := 0
	for _, r := range replicas {
		if r.Name == f.self.Name {
			continue
		}
		present[r.Name] = true
		if _, ok := f.known[r.Name]; ok {
			continue
		}

		attrs := append(types.Attrs(ReplicaAttribute, r.Name), r.Attributes...)
		err := f.target.AddRemoteRootNode(ctx, r.RootID, attrs)
		switch {
		case err == nil:
			added++
			f.logger.Info("replica joined", "peer", r.Name, "root", r.RootID)
		case errors.Is(err, rsgerr.ErrIDAlreadyExists):
			f.logger.Debug("remote root already present", "peer", r.Name, "root", r.RootID)
		default:
			f.logger.Warn("failed to add remote root", "peer", r.Name, "root", r.RootID, "error", err)
			continue
		}
		f.known[r.Name] = r.RootID
	}

	// Departed replicas keep their remote root; it stays a valid federation
	// marker for references already made to it.
	for name, rootID := range f.known {
		if !present[name] {
			f.logger.Info("replica left", "peer", name, "root", rootID)
			delete(f.known, name)
		}
	}
	return added
}
