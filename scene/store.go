// Package scene implements the Robot Scene Graph store: an in-memory DAG of
// typed entities (nodes, groups, transforms, geometric nodes, connections)
// plus a registry of remote root nodes owned by other replicas.
//
// # Identity
//
// Every entity has a unique id.ID. The Root group has the fixed id.Root and
// always resolves. Add operations either generate an ID or accept a forced
// one supplied with WithForcedID, which is how replicas keep identities in
// sync. A forced ID that is already in use is rejected.
//
// # History
//
// Transforms and attributes are append-only: a set operation adds a new
// version and never rewrites an old one. Reads pick the version with the
// greatest timestamp not after the requested instant; the zero TimeStamp
// requests the latest version.
//
// # Deletion
//
// DeleteNode unlinks a node from every parent and drops it from the store.
// Connections referencing a deleted ID keep that ID in their source and
// target sets: references are stale but visible, never pruned.
//
// # Concurrency
//
// A Store is safe for concurrent use. Reads share a read lock, writes take
// the exclusive lock and notify the update.Dispatcher before releasing it,
// so observers see mutations exactly once and in commit order. Observer
// failures are logged and never undo a commit.
//
// Example:
//
//	store := scene.New(scene.WithLogger(logger))
//	table, err := store.AddGroup(ctx, id.Root, types.Attrs("name", "table"))
//	if err != nil {
//	    return err
//	}
//	tf, err := store.AddTransformNode(ctx, table, nil, types.Translation(1, 0, 0), types.Now())
package scene

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/types"
	"github.com/zero-day-ai/rsg/update"
)

// Store is the authoritative in-memory scene graph.
type Store struct {
	mu          sync.RWMutex
	nodes       map[id.ID]*entity
	remoteRoots map[id.ID]types.Attributes
	remoteOrder []id.ID

	dispatcher *update.Dispatcher
	generator  id.Generator
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDispatcher sets the dispatcher notified after every committed write.
// Without it the store creates a private dispatcher, reachable through
// Dispatcher.
func WithDispatcher(d *update.Dispatcher) Option {
	return func(s *Store) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithGenerator sets the ID generator used for non-forced adds.
func WithGenerator(g id.Generator) Option {
	return func(s *Store) {
		if g != nil {
			s.generator = g
		}
	}
}

// WithTracer sets the tracer used for write spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New creates a store holding only the Root group.
func New(opts ...Option) *Store {
	s := &Store{
		nodes:       make(map[id.ID]*entity),
		remoteRoots: make(map[id.ID]types.Attributes),
		generator:   id.NewGenerator(),
		logger:      slog.Default(),
		tracer:      noop.NewTracerProvider().Tracer("rsg"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = update.NewDispatcher(update.WithLogger(s.logger))
	}
	s.logger = s.logger.With("component", "scene")
	s.nodes[id.Root] = newEntity(id.Root, KindGroup, nil, types.TimeStamp{})
	return s
}

// Dispatcher returns the dispatcher the store notifies.
func (s *Store) Dispatcher() *update.Dispatcher {
	return s.dispatcher
}

// RootID returns the well-known Root ID.
func (s *Store) RootID() id.ID {
	return id.Root
}

// Len returns the number of graph entities, Root included and remote roots
// excluded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// notify forwards a committed mutation. The caller holds the write lock.
func (s *Store) notify(ctx context.Context, m update.Mutation) {
	report := s.dispatcher.Dispatch(ctx, m)
	if report.Err != nil {
		s.logger.Warn("mutation committed but not delivered to every observer",
			"op", m.Op,
			"id", m.ID,
			"delivered", report.Delivered,
			"failed", report.Failed,
		)
	}
}

// lookup resolves an entity. The caller holds a lock.
func (s *Store) lookup(nodeID id.ID) (*entity, bool) {
	e, ok := s.nodes[nodeID]
	return e, ok
}

// inUse reports whether nodeID names any entity or remote root.
// The caller holds a lock.
func (s *Store) inUse(nodeID id.ID) bool {
	if _, ok := s.nodes[nodeID]; ok {
		return true
	}
	_, ok := s.remoteRoots[nodeID]
	return ok
}

// nextID returns a generated ID that is not in use. The caller holds the
// write lock.
func (s *Store) nextID() id.ID {
	for {
		candidate := s.generator.New()
		if !candidate.IsNil() && !s.inUse(candidate) {
			return candidate
		}
	}
}
