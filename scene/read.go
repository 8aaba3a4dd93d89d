package scene

import (
	"context"
	"sort"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/rsgerr"
	"github.com/zero-day-ai/rsg/types"
)

// GetNodes returns the IDs of graph entities whose current attributes
// contain every pair of filter, sorted by ID. The empty filter matches all
// entities, Root included.
func (s *Store) GetNodes(ctx context.Context, filter types.Attributes) []id.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []id.ID
	for nodeID, e := range s.nodes {
		if e.currentAttributes().Contains(filter) {
			out = append(out, nodeID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// GetNodeAttributes returns the current attributes of a node or remote root.
func (s *Store) GetNodeAttributes(ctx context.Context, nodeID id.ID) (types.Attributes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.lookup(nodeID); ok {
		return e.currentAttributes().Clone(), nil
	}
	if attrs, ok := s.remoteRoots[nodeID]; ok {
		return attrs.Clone(), nil
	}
	return nil, rsgerr.New("scene.GetNodeAttributes", rsgerr.KindNotFound, "node %s not found", nodeID)
}

// GetNodeAttributeHistory returns every attribute version of a node in
// insertion order.
func (s *Store) GetNodeAttributeHistory(ctx context.Context, nodeID id.ID) ([]AttributeVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.lookup(nodeID)
	if !ok {
		return nil, rsgerr.New("scene.GetNodeAttributeHistory", rsgerr.KindNotFound, "node %s not found", nodeID)
	}
	out := make([]AttributeVersion, len(e.attributes))
	for i, v := range e.attributes {
		out[i] = AttributeVersion{Attributes: v.Attributes.Clone(), Stamp: v.Stamp}
	}
	return out, nil
}

// GetNodeKind returns the variant of a graph entity.
func (s *Store) GetNodeKind(ctx context.Context, nodeID id.ID) (Kind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.lookup(nodeID)
	if !ok {
		return "", rsgerr.New("scene.GetNodeKind", rsgerr.KindNotFound, "node %s not found", nodeID)
	}
	return e.kind, nil
}

// GetNodeParents returns the parents of a node in link order.
func (s *Store) GetNodeParents(ctx context.Context, nodeID id.ID) ([]id.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.lookup(nodeID)
	if !ok {
		return nil, rsgerr.New("scene.GetNodeParents", rsgerr.KindNotFound, "node %s not found", nodeID)
	}
	return cloneIDs(e.parents), nil
}

// GetGroupChildren returns the children of a group or transform in link
// order. Leaf kinds fail with rsgerr.ErrTypeMismatch.
func (s *Store) GetGroupChildren(ctx context.Context, nodeID id.ID) ([]id.ID, error) {
	const op = "scene.GetGroupChildren"
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.lookup(nodeID)
	if !ok {
		return nil, rsgerr.New(op, rsgerr.KindNotFound, "node %s not found", nodeID)
	}
	if !e.kind.IsContainer() {
		return nil, rsgerr.New(op, rsgerr.KindTypeMismatch, "node %s is a %s and has no children", nodeID, e.kind)
	}
	return cloneIDs(e.children), nil
}

// GetRemoteRootNodes returns the registered remote roots in registration
// order.
func (s *Store) GetRemoteRootNodes(ctx context.Context) []id.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneIDs(s.remoteOrder)
}

// GetTransform returns the local transform of a transform node at stamp.
func (s *Store) GetTransform(ctx context.Context, nodeID id.ID, stamp types.TimeStamp) (types.Matrix44, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.transformEntity("scene.GetTransform", nodeID)
	if err != nil {
		return types.Matrix44{}, err
	}
	return e.transform.transformAt(stamp), nil
}

// GetTransformHistory returns every version of a transform ordered by stamp.
func (s *Store) GetTransformHistory(ctx context.Context, nodeID id.ID) ([]TransformVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.transformEntity("scene.GetTransformHistory", nodeID)
	if err != nil {
		return nil, err
	}
	return e.transform.sortedHistory(), nil
}

// GetUncertainty returns the uncertainty of a transform node at stamp.
// A transform without uncertainty fails with rsgerr.ErrNotFound.
func (s *Store) GetUncertainty(ctx context.Context, nodeID id.ID, stamp types.TimeStamp) (types.Uncertainty, error) {
	const op = "scene.GetUncertainty"
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.transformEntity(op, nodeID)
	if err != nil {
		return types.Uncertainty{}, err
	}
	u, ok := e.transform.uncertaintyAt(stamp)
	if !ok {
		return types.Uncertainty{}, rsgerr.New(op, rsgerr.KindNotFound, "transform %s has no uncertainty at %s", nodeID, stamp)
	}
	return u, nil
}

// GetTransformForNode returns the pose of nodeID expressed in the frame of
// referenceID at stamp. A nil referenceID means Root.
//
// The pose of a node is the product of the transforms on its first-parent
// path from the top of the graph down to the node; groups and other kinds
// contribute identity. The result is inverse(pose(reference)) × pose(node).
// Both nodes must hang below the same top node.
func (s *Store) GetTransformForNode(ctx context.Context, nodeID, referenceID id.ID, stamp types.TimeStamp) (types.Matrix44, error) {
	const op = "scene.GetTransformForNode"
	if referenceID.IsNil() {
		referenceID = id.Root
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pose, top, err := s.pose(op, nodeID, stamp)
	if err != nil {
		return types.Matrix44{}, err
	}
	refPose, refTop, err := s.pose(op, referenceID, stamp)
	if err != nil {
		return types.Matrix44{}, err
	}
	if top != refTop {
		return types.Matrix44{}, rsgerr.New(op, rsgerr.KindNotFound, "no common frame between %s and %s", nodeID, referenceID)
	}
	return refPose.Inverse().Mul(pose), nil
}

// pose walks first parents up from nodeID and composes the transforms on
// the way. It returns the pose relative to the top node it reached.
// The caller holds a lock.
func (s *Store) pose(op string, nodeID id.ID, stamp types.TimeStamp) (types.Matrix44, id.ID, error) {
	e, ok := s.lookup(nodeID)
	if !ok {
		return types.Matrix44{}, id.Nil, rsgerr.New(op, rsgerr.KindNotFound, "node %s not found", nodeID)
	}

	pose := types.Identity()
	for {
		if e.transform != nil {
			pose = e.transform.transformAt(stamp).Mul(pose)
		}
		if len(e.parents) == 0 {
			return pose, e.id, nil
		}
		parent, ok := s.lookup(e.parents[0])
		if !ok {
			return types.Matrix44{}, id.Nil, rsgerr.New(op, rsgerr.KindInternal, "parent %s of %s does not resolve", e.parents[0], e.id)
		}
		e = parent
	}
}

// GetGeometry returns the shape of a geometric node and its stamp.
func (s *Store) GetGeometry(ctx context.Context, nodeID id.ID) (types.Shape, types.TimeStamp, error) {
	const op = "scene.GetGeometry"
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.lookup(nodeID)
	if !ok {
		return types.Shape{}, types.TimeStamp{}, rsgerr.New(op, rsgerr.KindNotFound, "node %s not found", nodeID)
	}
	if e.geometry == nil {
		return types.Shape{}, types.TimeStamp{}, rsgerr.New(op, rsgerr.KindTypeMismatch, "node %s is a %s, not a GeometricNode", nodeID, e.kind)
	}
	return e.geometry.shape, e.geometry.stamp, nil
}

// GetConnection returns the full payload of a connection.
func (s *Store) GetConnection(ctx context.Context, nodeID id.ID) (Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.connection("scene.GetConnection", nodeID)
	if err != nil {
		return Connection{}, err
	}
	return Connection{
		SourceIDs: cloneIDs(c.SourceIDs),
		TargetIDs: cloneIDs(c.TargetIDs),
		Start:     c.Start,
		End:       c.End,
	}, nil
}

// GetConnectionSourceIDs returns the source set of a connection. IDs of
// deleted nodes stay in the set.
func (s *Store) GetConnectionSourceIDs(ctx context.Context, nodeID id.ID) ([]id.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.connection("scene.GetConnectionSourceIDs", nodeID)
	if err != nil {
		return nil, err
	}
	return cloneIDs(c.SourceIDs), nil
}

// GetConnectionTargetIDs returns the target set of a connection.
func (s *Store) GetConnectionTargetIDs(ctx context.Context, nodeID id.ID) ([]id.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.connection("scene.GetConnectionTargetIDs", nodeID)
	if err != nil {
		return nil, err
	}
	return cloneIDs(c.TargetIDs), nil
}

func (s *Store) connection(op string, nodeID id.ID) (*Connection, error) {
	e, ok := s.lookup(nodeID)
	if !ok {
		return nil, rsgerr.New(op, rsgerr.KindNotFound, "node %s not found", nodeID)
	}
	if e.connection == nil {
		return nil, rsgerr.New(op, rsgerr.KindTypeMismatch, "node %s is a %s, not a Connection", nodeID, e.kind)
	}
	return e.connection, nil
}

// Exists reports whether nodeID resolves to a graph entity or remote root.
func (s *Store) Exists(nodeID id.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inUse(nodeID)
}
