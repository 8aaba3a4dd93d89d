package scene

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/rsgerr"
	"github.com/zero-day-ai/rsg/types"
	"github.com/zero-day-ai/rsg/update"
)

type addConfig struct {
	forcedID id.ID
	forced   bool
}

// AddOption configures an add operation.
type AddOption func(*addConfig)

// WithForcedID makes the add use nodeID instead of a generated ID.
// The add fails with rsgerr.ErrIDAlreadyExists if nodeID is in use.
func WithForcedID(nodeID id.ID) AddOption {
	return func(c *addConfig) {
		c.forcedID = nodeID
		c.forced = true
	}
}

// AddNode adds a plain node under parentID.
func (s *Store) AddNode(ctx context.Context, parentID id.ID, attrs types.Attributes, opts ...AddOption) (id.ID, error) {
	m := update.Mutation{Op: update.OpAddNode, Attributes: attrs.Clone()}
	return s.add(ctx, parentID, m, opts, func(nodeID id.ID) *entity {
		return newEntity(nodeID, KindNode, attrs, types.TimeStamp{})
	})
}

// AddGroup adds a group under parentID.
func (s *Store) AddGroup(ctx context.Context, parentID id.ID, attrs types.Attributes, opts ...AddOption) (id.ID, error) {
	m := update.Mutation{Op: update.OpAddGroup, Attributes: attrs.Clone()}
	return s.add(ctx, parentID, m, opts, func(nodeID id.ID) *entity {
		return newEntity(nodeID, KindGroup, attrs, types.TimeStamp{})
	})
}

// AddTransformNode adds a transform under parentID whose history starts with
// (transform, stamp).
func (s *Store) AddTransformNode(ctx context.Context, parentID id.ID, attrs types.Attributes, transform types.Matrix44, stamp types.TimeStamp, opts ...AddOption) (id.ID, error) {
	m := update.Mutation{Op: update.OpAddTransformNode, Attributes: attrs.Clone(), Transform: transform, Stamp: stamp}
	return s.add(ctx, parentID, m, opts, func(nodeID id.ID) *entity {
		e := newEntity(nodeID, KindTransform, attrs, stamp)
		e.transform = &transformPayload{
			history: []TransformVersion{{Matrix: transform, Stamp: stamp}},
		}
		return e
	})
}

// AddUncertainTransformNode adds a transform whose first version carries an
// uncertainty.
func (s *Store) AddUncertainTransformNode(ctx context.Context, parentID id.ID, attrs types.Attributes, transform types.Matrix44, uncertainty types.Uncertainty, stamp types.TimeStamp, opts ...AddOption) (id.ID, error) {
	m := update.Mutation{Op: update.OpAddUncertainTransformNode, Attributes: attrs.Clone(), Transform: transform, Uncertainty: uncertainty, Stamp: stamp}
	return s.add(ctx, parentID, m, opts, func(nodeID id.ID) *entity {
		e := newEntity(nodeID, KindTransform, attrs, stamp)
		e.transform = &transformPayload{
			history: []TransformVersion{{Matrix: transform, Uncertainty: &uncertainty, Stamp: stamp}},
		}
		return e
	})
}

// AddGeometricNode adds a node carrying an immutable shape.
func (s *Store) AddGeometricNode(ctx context.Context, parentID id.ID, attrs types.Attributes, shape types.Shape, stamp types.TimeStamp, opts ...AddOption) (id.ID, error) {
	if err := shape.Validate(); err != nil {
		return id.Nil, rsgerr.Wrap("scene.AddGeometricNode", rsgerr.KindSyntax, err)
	}
	m := update.Mutation{Op: update.OpAddGeometricNode, Attributes: attrs.Clone(), Shape: shape, Stamp: stamp}
	return s.add(ctx, parentID, m, opts, func(nodeID id.ID) *entity {
		e := newEntity(nodeID, KindGeometricNode, attrs, stamp)
		e.geometry = &geometryPayload{shape: shape, stamp: stamp}
		return e
	})
}

// AddConnection adds a hyper-edge from sourceIDs to targetIDs valid in
// [start, end]. A zero end never expires. Source and target IDs are not
// required to resolve.
func (s *Store) AddConnection(ctx context.Context, parentID id.ID, attrs types.Attributes, sourceIDs, targetIDs []id.ID, start, end types.TimeStamp, opts ...AddOption) (id.ID, error) {
	if !end.IsZero() && end.Before(start) {
		return id.Nil, rsgerr.New("scene.AddConnection", rsgerr.KindSyntax, "connection ends at %s before it starts at %s", end, start)
	}
	m := update.Mutation{
		Op:         update.OpAddConnection,
		Attributes: attrs.Clone(),
		SourceIDs:  cloneIDs(sourceIDs),
		TargetIDs:  cloneIDs(targetIDs),
		Start:      start,
		End:        end,
	}
	return s.add(ctx, parentID, m, opts, func(nodeID id.ID) *entity {
		e := newEntity(nodeID, KindConnection, attrs, start)
		e.connection = &Connection{
			SourceIDs: cloneIDs(sourceIDs),
			TargetIDs: cloneIDs(targetIDs),
			Start:     start,
			End:       end,
		}
		return e
	})
}

func (s *Store) add(ctx context.Context, parentID id.ID, m update.Mutation, opts []AddOption, build func(id.ID) *entity) (id.ID, error) {
	var cfg addConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	op := "scene." + string(m.Op)

	ctx, span := s.startWrite(ctx, m.Op, parentID)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.lookup(parentID)
	if !ok {
		return id.Nil, fail(span, rsgerr.New(op, rsgerr.KindNotFound, "parent %s not found", parentID))
	}
	if !parent.kind.IsContainer() {
		return id.Nil, fail(span, rsgerr.New(op, rsgerr.KindTypeMismatch, "parent %s is a %s and cannot have children", parentID, parent.kind))
	}

	var nodeID id.ID
	if cfg.forced {
		if cfg.forcedID.IsNil() {
			return id.Nil, fail(span, rsgerr.New(op, rsgerr.KindSyntax, "forced id must not be nil"))
		}
		if s.inUse(cfg.forcedID) {
			return id.Nil, fail(span, rsgerr.New(op, rsgerr.KindIDAlreadyExists, "id %s already exists", cfg.forcedID))
		}
		nodeID = cfg.forcedID
	} else {
		nodeID = s.nextID()
	}

	e := build(nodeID)
	e.parents = []id.ID{parentID}
	s.nodes[nodeID] = e
	parent.children = append(parent.children, nodeID)

	m.ID = nodeID
	m.ParentID = parentID
	m.Forced = cfg.forced
	span.SetAttributes(attribute.String("rsg.id", nodeID.String()))
	s.logger.Debug("added entity", "kind", e.kind, "id", nodeID, "parent", parentID, "forced", cfg.forced)

	s.notify(ctx, m)
	return nodeID, nil
}

// AddRemoteRootNode registers rootID as the root of a subgraph owned by
// another replica. Remote roots are not linked into the local graph.
func (s *Store) AddRemoteRootNode(ctx context.Context, rootID id.ID, attrs types.Attributes) error {
	const op = "scene.AddRemoteRootNode"
	ctx, span := s.startWrite(ctx, update.OpAddRemoteRootNode, rootID)
	defer span.End()

	if rootID.IsNil() {
		return fail(span, rsgerr.New(op, rsgerr.KindSyntax, "remote root id must not be nil"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inUse(rootID) {
		return fail(span, rsgerr.New(op, rsgerr.KindIDAlreadyExists, "id %s already exists", rootID))
	}
	s.remoteRoots[rootID] = attrs.Clone()
	s.remoteOrder = append(s.remoteOrder, rootID)
	s.logger.Debug("added remote root node", "id", rootID)

	s.notify(ctx, update.Mutation{Op: update.OpAddRemoteRootNode, ID: rootID, Attributes: attrs.Clone(), Forced: true})
	return nil
}

// SetNodeAttributes appends a new attribute version to nodeID. Remote root
// nodes accept attribute updates too.
func (s *Store) SetNodeAttributes(ctx context.Context, nodeID id.ID, attrs types.Attributes, stamp types.TimeStamp) error {
	const op = "scene.SetNodeAttributes"
	ctx, span := s.startWrite(ctx, update.OpSetNodeAttributes, nodeID)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.lookup(nodeID); ok {
		e.attributes = append(e.attributes, AttributeVersion{Attributes: attrs.Clone(), Stamp: stamp})
	} else if _, ok := s.remoteRoots[nodeID]; ok {
		s.remoteRoots[nodeID] = attrs.Clone()
	} else {
		return fail(span, rsgerr.New(op, rsgerr.KindNotFound, "node %s not found", nodeID))
	}

	s.notify(ctx, update.Mutation{Op: update.OpSetNodeAttributes, ID: nodeID, Attributes: attrs.Clone(), Stamp: stamp})
	return nil
}

// SetTransform appends (transform, stamp) to the history of a transform node.
func (s *Store) SetTransform(ctx context.Context, nodeID id.ID, transform types.Matrix44, stamp types.TimeStamp) error {
	const op = "scene.SetTransform"
	ctx, span := s.startWrite(ctx, update.OpSetTransform, nodeID)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.transformEntity(op, nodeID)
	if err != nil {
		return fail(span, err)
	}
	e.transform.history = append(e.transform.history, TransformVersion{Matrix: transform, Stamp: stamp})

	s.notify(ctx, update.Mutation{Op: update.OpSetTransform, ID: nodeID, Transform: transform, Stamp: stamp})
	return nil
}

// SetUncertainTransform appends a transform version and an uncertainty
// version with the same stamp.
func (s *Store) SetUncertainTransform(ctx context.Context, nodeID id.ID, transform types.Matrix44, uncertainty types.Uncertainty, stamp types.TimeStamp) error {
	const op = "scene.SetUncertainTransform"
	ctx, span := s.startWrite(ctx, update.OpSetUncertainTransform, nodeID)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.transformEntity(op, nodeID)
	if err != nil {
		return fail(span, err)
	}
	e.transform.history = append(e.transform.history, TransformVersion{Matrix: transform, Uncertainty: &uncertainty, Stamp: stamp})

	s.notify(ctx, update.Mutation{Op: update.OpSetUncertainTransform, ID: nodeID, Transform: transform, Uncertainty: uncertainty, Stamp: stamp})
	return nil
}

// DeleteNode unlinks nodeID from its parents and children and removes it.
// Connections that reference nodeID are left untouched. Deleting a remote
// root node drops the marker. Root cannot be deleted.
func (s *Store) DeleteNode(ctx context.Context, nodeID id.ID) error {
	const op = "scene.DeleteNode"
	ctx, span := s.startWrite(ctx, update.OpDeleteNode, nodeID)
	defer span.End()

	if nodeID.IsRoot() {
		return fail(span, rsgerr.New(op, rsgerr.KindTypeMismatch, "root node cannot be deleted"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.lookup(nodeID); ok {
		for _, parentID := range e.parents {
			if parent, ok := s.lookup(parentID); ok {
				parent.children = without(parent.children, nodeID)
			}
		}
		for _, childID := range e.children {
			if child, ok := s.lookup(childID); ok {
				child.parents = without(child.parents, nodeID)
			}
		}
		delete(s.nodes, nodeID)
	} else if _, ok := s.remoteRoots[nodeID]; ok {
		delete(s.remoteRoots, nodeID)
		s.remoteOrder = without(s.remoteOrder, nodeID)
	} else {
		return fail(span, rsgerr.New(op, rsgerr.KindNotFound, "node %s not found", nodeID))
	}
	s.logger.Debug("deleted entity", "id", nodeID)

	s.notify(ctx, update.Mutation{Op: update.OpDeleteNode, ID: nodeID})
	return nil
}

// AddParent links nodeID under an additional parent. Linking an existing
// parent again is a no-op. A link that would close a cycle is rejected.
func (s *Store) AddParent(ctx context.Context, nodeID, parentID id.ID) error {
	const op = "scene.AddParent"
	ctx, span := s.startWrite(ctx, update.OpAddParent, nodeID)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	child, ok := s.lookup(nodeID)
	if !ok {
		return fail(span, rsgerr.New(op, rsgerr.KindNotFound, "node %s not found", nodeID))
	}
	parent, ok := s.lookup(parentID)
	if !ok {
		return fail(span, rsgerr.New(op, rsgerr.KindNotFound, "parent %s not found", parentID))
	}
	if nodeID.IsRoot() {
		return fail(span, rsgerr.New(op, rsgerr.KindTypeMismatch, "root node cannot have parents"))
	}
	if !parent.kind.IsContainer() {
		return fail(span, rsgerr.New(op, rsgerr.KindTypeMismatch, "parent %s is a %s and cannot have children", parentID, parent.kind))
	}
	if child.hasParent(parentID) {
		return nil
	}
	if nodeID == parentID || s.isDescendant(parentID, nodeID) {
		return fail(span, rsgerr.New(op, rsgerr.KindTypeMismatch, "linking %s under %s would create a cycle", nodeID, parentID))
	}

	child.parents = append(child.parents, parentID)
	parent.children = append(parent.children, nodeID)

	s.notify(ctx, update.Mutation{Op: update.OpAddParent, ID: nodeID, ParentID: parentID})
	return nil
}

// RemoveParent unlinks nodeID from parentID. Removing the last parent
// leaves an orphan that is no longer reachable from Root but still exists.
func (s *Store) RemoveParent(ctx context.Context, nodeID, parentID id.ID) error {
	const op = "scene.RemoveParent"
	ctx, span := s.startWrite(ctx, update.OpRemoveParent, nodeID)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	child, ok := s.lookup(nodeID)
	if !ok {
		return fail(span, rsgerr.New(op, rsgerr.KindNotFound, "node %s not found", nodeID))
	}
	if !child.hasParent(parentID) {
		return fail(span, rsgerr.New(op, rsgerr.KindNotFound, "%s is not a parent of %s", parentID, nodeID))
	}

	child.parents = without(child.parents, parentID)
	if parent, ok := s.lookup(parentID); ok {
		parent.children = without(parent.children, nodeID)
	}

	s.notify(ctx, update.Mutation{Op: update.OpRemoveParent, ID: nodeID, ParentID: parentID})
	return nil
}

// Apply performs the write described by m. Add mutations use m.ID as a
// forced ID when m.Forced is set. It lets decoded or journaled mutations be
// replayed into a store.
func (s *Store) Apply(ctx context.Context, m update.Mutation) error {
	var opts []AddOption
	if m.Forced {
		opts = append(opts, WithForcedID(m.ID))
	}

	var err error
	switch m.Op {
	case update.OpAddNode:
		_, err = s.AddNode(ctx, m.ParentID, m.Attributes, opts...)
	case update.OpAddGroup:
		_, err = s.AddGroup(ctx, m.ParentID, m.Attributes, opts...)
	case update.OpAddTransformNode:
		_, err = s.AddTransformNode(ctx, m.ParentID, m.Attributes, m.Transform, m.Stamp, opts...)
	case update.OpAddUncertainTransformNode:
		_, err = s.AddUncertainTransformNode(ctx, m.ParentID, m.Attributes, m.Transform, m.Uncertainty, m.Stamp, opts...)
	case update.OpAddGeometricNode:
		_, err = s.AddGeometricNode(ctx, m.ParentID, m.Attributes, m.Shape, m.Stamp, opts...)
	case update.OpAddConnection:
		_, err = s.AddConnection(ctx, m.ParentID, m.Attributes, m.SourceIDs, m.TargetIDs, m.Start, m.End, opts...)
	case update.OpAddRemoteRootNode:
		err = s.AddRemoteRootNode(ctx, m.ID, m.Attributes)
	case update.OpSetNodeAttributes:
		err = s.SetNodeAttributes(ctx, m.ID, m.Attributes, m.Stamp)
	case update.OpSetTransform:
		err = s.SetTransform(ctx, m.ID, m.Transform, m.Stamp)
	case update.OpSetUncertainTransform:
		err = s.SetUncertainTransform(ctx, m.ID, m.Transform, m.Uncertainty, m.Stamp)
	case update.OpDeleteNode:
		err = s.DeleteNode(ctx, m.ID)
	case update.OpAddParent:
		err = s.AddParent(ctx, m.ID, m.ParentID)
	case update.OpRemoveParent:
		err = s.RemoveParent(ctx, m.ID, m.ParentID)
	default:
		err = rsgerr.New("scene.Apply", rsgerr.KindSyntax, "unknown mutation %q", m.Op)
	}
	return err
}

// transformEntity resolves nodeID to a transform. The caller holds a lock.
func (s *Store) transformEntity(op string, nodeID id.ID) (*entity, error) {
	e, ok := s.lookup(nodeID)
	if !ok {
		return nil, rsgerr.New(op, rsgerr.KindNotFound, "node %s not found", nodeID)
	}
	if e.kind != KindTransform {
		return nil, rsgerr.New(op, rsgerr.KindTypeMismatch, "node %s is a %s, not a Transform", nodeID, e.kind)
	}
	return e, nil
}

// isDescendant reports whether candidate is reachable from ancestor through
// child links. The caller holds a lock.
func (s *Store) isDescendant(candidate, ancestor id.ID) bool {
	seen := make(map[id.ID]bool)
	stack := []id.ID{ancestor}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e, ok := s.lookup(current)
		if !ok {
			continue
		}
		for _, childID := range e.children {
			if childID == candidate {
				return true
			}
			if !seen[childID] {
				seen[childID] = true
				stack = append(stack, childID)
			}
		}
	}
	return false
}

func (s *Store) startWrite(ctx context.Context, op update.Op, target id.ID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "rsg.scene.write",
		trace.WithAttributes(
			attribute.String("rsg.op", string(op)),
			attribute.String("rsg.target", target.String()),
		),
	)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
