package update

import (
	"context"
	"fmt"
	"sync"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/types"
)

// Mutation is one committed change, as a value.
// Only the fields relevant to Op are meaningful.
type Mutation struct {
	Op Op

	// ID is the assigned ID for add operations, the root ID for
	// OpAddRemoteRootNode and the target node otherwise.
	ID id.ID

	// ParentID is the parent for add operations, AddParent and RemoveParent.
	ParentID id.ID

	Attributes  types.Attributes
	Transform   types.Matrix44
	Uncertainty types.Uncertainty
	Shape       types.Shape
	SourceIDs   []id.ID
	TargetIDs   []id.ID

	// Stamp versions transforms, geometry and attribute updates.
	Stamp types.TimeStamp

	// Start and End bound a connection's validity.
	Start types.TimeStamp
	End   types.TimeStamp

	// Forced reports whether the ID was supplied by the caller.
	Forced bool
}

// Apply invokes the Observer method matching m.Op.
func (m Mutation) Apply(ctx context.Context, obs Observer) error {
	switch m.Op {
	case OpAddNode:
		return obs.AddNode(ctx, m.ParentID, m.ID, m.Attributes, m.Forced)
	case OpAddGroup:
		return obs.AddGroup(ctx, m.ParentID, m.ID, m.Attributes, m.Forced)
	case OpAddTransformNode:
		return obs.AddTransformNode(ctx, m.ParentID, m.ID, m.Attributes, m.Transform, m.Stamp, m.Forced)
	case OpAddUncertainTransformNode:
		return obs.AddUncertainTransformNode(ctx, m.ParentID, m.ID, m.Attributes, m.Transform, m.Uncertainty, m.Stamp, m.Forced)
	case OpAddGeometricNode:
		return obs.AddGeometricNode(ctx, m.ParentID, m.ID, m.Attributes, m.Shape, m.Stamp, m.Forced)
	case OpAddRemoteRootNode:
		return obs.AddRemoteRootNode(ctx, m.ID, m.Attributes)
	case OpAddConnection:
		return obs.AddConnection(ctx, m.ParentID, m.ID, m.Attributes, m.SourceIDs, m.TargetIDs, m.Start, m.End, m.Forced)
	case OpSetNodeAttributes:
		return obs.SetNodeAttributes(ctx, m.ID, m.Attributes, m.Stamp)
	case OpSetTransform:
		return obs.SetTransform(ctx, m.ID, m.Transform, m.Stamp)
	case OpSetUncertainTransform:
		return obs.SetUncertainTransform(ctx, m.ID, m.Transform, m.Uncertainty, m.Stamp)
	case OpDeleteNode:
		return obs.DeleteNode(ctx, m.ID)
	case OpAddParent:
		return obs.AddParent(ctx, m.ID, m.ParentID)
	case OpRemoveParent:
		return obs.RemoveParent(ctx, m.ID, m.ParentID)
	default:
		return fmt.Errorf("unknown mutation op %q", m.Op)
	}
}

// ObserverFunc adapts a function over Mutation values to the Observer
// interface. Each method call is turned into a Mutation and passed to f.
type ObserverFunc func(ctx context.Context, m Mutation) error

var _ Observer = ObserverFunc(nil)

func (f ObserverFunc) AddNode(ctx context.Context, parentID, assignedID id.ID, attrs types.Attributes, forced bool) error {
	return f(ctx, Mutation{Op: OpAddNode, ParentID: parentID, ID: assignedID, Attributes: attrs, Forced: forced})
}

func (f ObserverFunc) AddGroup(ctx context.Context, parentID, assignedID id.ID, attrs types.Attributes, forced bool) error {
	return f(ctx, Mutation{Op: OpAddGroup, ParentID: parentID, ID: assignedID, Attributes: attrs, Forced: forced})
}

func (f ObserverFunc) AddTransformNode(ctx context.Context, parentID, assignedID id.ID, attrs types.Attributes, transform types.Matrix44, stamp types.TimeStamp, forced bool) error {
	return f(ctx, Mutation{Op: OpAddTransformNode, ParentID: parentID, ID: assignedID, Attributes: attrs, Transform: transform, Stamp: stamp, Forced: forced})
}

func (f ObserverFunc) AddUncertainTransformNode(ctx context.Context, parentID, assignedID id.ID, attrs types.Attributes, transform types.Matrix44, uncertainty types.Uncertainty, stamp types.TimeStamp, forced bool) error {
	return f(ctx, Mutation{Op: OpAddUncertainTransformNode, ParentID: parentID, ID: assignedID, Attributes: attrs, Transform: transform, Uncertainty: uncertainty, Stamp: stamp, Forced: forced})
}

func (f ObserverFunc) AddGeometricNode(ctx context.Context, parentID, assignedID id.ID, attrs types.Attributes, shape types.Shape, stamp types.TimeStamp, forced bool) error {
	return f(ctx, Mutation{Op: OpAddGeometricNode, ParentID: parentID, ID: assignedID, Attributes: attrs, Shape: shape, Stamp: stamp, Forced: forced})
}

func (f ObserverFunc) AddRemoteRootNode(ctx context.Context, rootID id.ID, attrs types.Attributes) error {
	return f(ctx, Mutation{Op: OpAddRemoteRootNode, ID: rootID, Attributes: attrs, Forced: true})
}

func (f ObserverFunc) AddConnection(ctx context.Context, parentID, assignedID id.ID, attrs types.Attributes, sourceIDs, targetIDs []id.ID, start, end types.TimeStamp, forced bool) error {
	return f(ctx, Mutation{Op: OpAddConnection, ParentID: parentID, ID: assignedID, Attributes: attrs, SourceIDs: sourceIDs, TargetIDs: targetIDs, Start: start, End: end, Forced: forced})
}

func (f ObserverFunc) SetNodeAttributes(ctx context.Context, nodeID id.ID, attrs types.Attributes, stamp types.TimeStamp) error {
	return f(ctx, Mutation{Op: OpSetNodeAttributes, ID: nodeID, Attributes: attrs, Stamp: stamp})
}

func (f ObserverFunc) SetTransform(ctx context.Context, nodeID id.ID, transform types.Matrix44, stamp types.TimeStamp) error {
	return f(ctx, Mutation{Op: OpSetTransform, ID: nodeID, Transform: transform, Stamp: stamp})
}

func (f ObserverFunc) SetUncertainTransform(ctx context.Context, nodeID id.ID, transform types.Matrix44, uncertainty types.Uncertainty, stamp types.TimeStamp) error {
	return f(ctx, Mutation{Op: OpSetUncertainTransform, ID: nodeID, Transform: transform, Uncertainty: uncertainty, Stamp: stamp})
}

func (f ObserverFunc) DeleteNode(ctx context.Context, nodeID id.ID) error {
	return f(ctx, Mutation{Op: OpDeleteNode, ID: nodeID})
}

func (f ObserverFunc) AddParent(ctx context.Context, nodeID, parentID id.ID) error {
	return f(ctx, Mutation{Op: OpAddParent, ID: nodeID, ParentID: parentID})
}

func (f ObserverFunc) RemoveParent(ctx context.Context, nodeID, parentID id.ID) error {
	return f(ctx, Mutation{Op: OpRemoveParent, ID: nodeID, ParentID: parentID})
}

// Recorder is an Observer that keeps every mutation it sees.
// It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	mutations []Mutation
	fail      error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Observer returns the Recorder as an Observer.
func (r *Recorder) Observer() Observer {
	return ObserverFunc(r.record)
}

// FailWith makes subsequent notifications return err after recording.
// Pass nil to succeed again.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Mutations returns a copy of the recorded mutations in arrival order.
func (r *Recorder) Mutations() []Mutation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Mutation, len(r.mutations))
	copy(out, r.mutations)
	return out
}

// Ops returns the recorded ops in arrival order.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, len(r.mutations))
	for i, m := range r.mutations {
		out[i] = m.Op
	}
	return out
}

func (r *Recorder) record(_ context.Context, m Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations = append(r.mutations, m)
	return r.fail
}
