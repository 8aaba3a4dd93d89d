// Package update propagates committed scene graph mutations to observers.
//
// An Observer is anything that wants to see every mutation of a store in
// commit order, typically a serialization backend that forwards the change to
// other replicas. The Dispatcher keeps observers in a registry keyed by small
// integer handles and notifies them synchronously, one after the other, in
// registration order.
//
// Failures are isolated: an observer returning an error (or panicking) is
// logged and counted, and the remaining observers are still notified. The
// dispatcher never reports a failure back as a reason to undo the mutation.
package update

import (
	"context"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/types"
)

// Op names a mutation of the scene graph.
type Op string

const (
	OpAddNode                   Op = "AddNode"
	OpAddGroup                  Op = "AddGroup"
	OpAddTransformNode          Op = "AddTransformNode"
	OpAddUncertainTransformNode Op = "AddUncertainTransformNode"
	OpAddGeometricNode          Op = "AddGeometricNode"
	OpAddRemoteRootNode         Op = "AddRemoteRootNode"
	OpAddConnection             Op = "AddConnection"
	OpSetNodeAttributes         Op = "SetNodeAttributes"
	OpSetTransform              Op = "SetTransform"
	OpSetUncertainTransform     Op = "SetUncertainTransform"
	OpDeleteNode                Op = "DeleteNode"
	OpAddParent                 Op = "AddParent"
	OpRemoveParent              Op = "RemoveParent"
)

// Observer receives every committed mutation with its final arguments.
// assignedID is the ID the store committed, whether generated or forced;
// forced reports which.
type Observer interface {
	AddNode(ctx context.Context, parentID, assignedID id.ID, attrs types.Attributes, forced bool) error
	AddGroup(ctx context.Context, parentID, assignedID id.ID, attrs types.Attributes, forced bool) error
	AddTransformNode(ctx context.Context, parentID, assignedID id.ID, attrs types.Attributes, transform types.Matrix44, stamp types.TimeStamp, forced bool) error
	AddUncertainTransformNode(ctx context.Context, parentID, assignedID id.ID, attrs types.Attributes, transform types.Matrix44, uncertainty types.Uncertainty, stamp types.TimeStamp, forced bool) error
	AddGeometricNode(ctx context.Context, parentID, assignedID id.ID, attrs types.Attributes, shape types.Shape, stamp types.TimeStamp, forced bool) error
	AddRemoteRootNode(ctx context.Context, rootID id.ID, attrs types.Attributes) error
	AddConnection(ctx context.Context, parentID, assignedID id.ID, attrs types.Attributes, sourceIDs, targetIDs []id.ID, start, end types.TimeStamp, forced bool) error
	SetNodeAttributes(ctx context.Context, nodeID id.ID, attrs types.Attributes, stamp types.TimeStamp) error
	SetTransform(ctx context.Context, nodeID id.ID, transform types.Matrix44, stamp types.TimeStamp) error
	SetUncertainTransform(ctx context.Context, nodeID id.ID, transform types.Matrix44, uncertainty types.Uncertainty, stamp types.TimeStamp) error
	DeleteNode(ctx context.Context, nodeID id.ID) error
	AddParent(ctx context.Context, nodeID, parentID id.ID) error
	RemoveParent(ctx context.Context, nodeID, parentID id.ID) error
}
