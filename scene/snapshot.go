package scene

import (
	"context"
	"sort"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/update"
)

// Snapshot returns a sequence of mutations that rebuilds the current store
// in an empty one via Apply. Every add carries a forced ID so the rebuilt
// store shares identities with this one.
//
// Entities are emitted parents first. Each entity is added under its first
// parent; further parents follow as AddParent, later attribute and
// transform versions as set mutations. Orphans are added under Root and
// then unlinked again.
func (s *Store) Snapshot(ctx context.Context) []update.Mutation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []update.Mutation
	for _, rootID := range s.remoteOrder {
		out = append(out, update.Mutation{
			Op:         update.OpAddRemoteRootNode,
			ID:         rootID,
			Attributes: s.remoteRoots[rootID].Clone(),
			Forced:     true,
		})
	}

	var extraParents []update.Mutation
	for _, e := range s.topological() {
		if e.id.IsRoot() {
			out = append(out, s.attributeUpdates(e, 1)...)
			continue
		}

		parentID := id.Root
		if len(e.parents) > 0 {
			parentID = e.parents[0]
		}
		out = append(out, s.addMutation(e, parentID))
		out = append(out, s.attributeUpdates(e, 1)...)
		if e.transform != nil {
			for _, v := range e.transform.history[1:] {
				m := update.Mutation{Op: update.OpSetTransform, ID: e.id, Transform: v.Matrix, Stamp: v.Stamp}
				if v.Uncertainty != nil {
					m.Op = update.OpSetUncertainTransform
					m.Uncertainty = *v.Uncertainty
				}
				out = append(out, m)
			}
		}

		if len(e.parents) == 0 {
			extraParents = append(extraParents, update.Mutation{Op: update.OpRemoveParent, ID: e.id, ParentID: id.Root})
			continue
		}
		for _, p := range e.parents[1:] {
			extraParents = append(extraParents, update.Mutation{Op: update.OpAddParent, ID: e.id, ParentID: p})
		}
	}
	return append(out, extraParents...)
}

func (s *Store) addMutation(e *entity, parentID id.ID) update.Mutation {
	first := e.attributes[0]
	m := update.Mutation{
		ID:         e.id,
		ParentID:   parentID,
		Attributes: first.Attributes.Clone(),
		Forced:     true,
	}
	switch e.kind {
	case KindNode:
		m.Op = update.OpAddNode
	case KindGroup:
		m.Op = update.OpAddGroup
	case KindTransform:
		v := e.transform.history[0]
		m.Op = update.OpAddTransformNode
		m.Transform = v.Matrix
		m.Stamp = v.Stamp
		if v.Uncertainty != nil {
			m.Op = update.OpAddUncertainTransformNode
			m.Uncertainty = *v.Uncertainty
		}
	case KindGeometricNode:
		m.Op = update.OpAddGeometricNode
		m.Shape = e.geometry.shape
		m.Stamp = e.geometry.stamp
	case KindConnection:
		m.Op = update.OpAddConnection
		m.SourceIDs = cloneIDs(e.connection.SourceIDs)
		m.TargetIDs = cloneIDs(e.connection.TargetIDs)
		m.Start = e.connection.Start
		m.End = e.connection.End
	}
	return m
}

func (s *Store) attributeUpdates(e *entity, from int) []update.Mutation {
	var out []update.Mutation
	for _, v := range e.attributes[from:] {
		out = append(out, update.Mutation{Op: update.OpSetNodeAttributes, ID: e.id, Attributes: v.Attributes.Clone(), Stamp: v.Stamp})
	}
	return out
}

// topological orders entities so that every entity follows all of its
// parents. Root comes first, orphans are seeded after it in ID order.
// The caller holds a lock.
func (s *Store) topological() []*entity {
	pending := make(map[id.ID]int, len(s.nodes))
	var queue []id.ID
	var orphans []id.ID
	for nodeID, e := range s.nodes {
		pending[nodeID] = len(e.parents)
		if len(e.parents) == 0 && !nodeID.IsRoot() {
			orphans = append(orphans, nodeID)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].Less(orphans[j]) })
	queue = append(queue, id.Root)
	queue = append(queue, orphans...)

	out := make([]*entity, 0, len(s.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		e := s.nodes[current]
		out = append(out, e)
		for _, childID := range e.children {
			pending[childID]--
			if pending[childID] == 0 {
				queue = append(queue, childID)
			}
		}
	}
	return out
}
