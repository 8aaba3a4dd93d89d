package jsoncodec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/rsgerr"
	"github.com/zero-day-ai/rsg/update"
)

// Target receives decoded mutations. *scene.Store implements it.
type Target interface {
	Apply(ctx context.Context, m update.Mutation) error
}

// Decode parses one RSGUpdate message.
func Decode(b []byte) (update.Mutation, error) {
	const op = "jsoncodec.Decode"

	dec := json.NewDecoder(bytes.NewReader(b))
	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return update.Mutation{}, rsgerr.Wrap(op, rsgerr.KindDecode, err)
	}
	m, err := msg.Mutation()
	if err != nil {
		return update.Mutation{}, rsgerr.Wrap(op, rsgerr.KindSyntax, err)
	}
	return m, nil
}

// DecodeMessage parses an already unmarshaled RSGUpdate message.
func DecodeMessage(msg map[string]any) (update.Mutation, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return update.Mutation{}, rsgerr.Wrap("jsoncodec.DecodeMessage", rsgerr.KindDecode, err)
	}
	return Decode(b)
}

// Apply decodes msg and performs the write on target.
func Apply(ctx context.Context, msg map[string]any, target Target) error {
	m, err := DecodeMessage(msg)
	if err != nil {
		return err
	}
	return target.Apply(ctx, m)
}

// ApplyJSON decodes b and performs the write on target.
func ApplyJSON(ctx context.Context, b []byte, target Target) error {
	m, err := Decode(b)
	if err != nil {
		return err
	}
	return target.Apply(ctx, m)
}

// Mutation interprets the message. Nodes carrying an ID are created with
// that ID forced.
func (msg Message) Mutation() (update.Mutation, error) {
	if msg.WorldModelType != TypeUpdate {
		return update.Mutation{}, fmt.Errorf("@worldmodeltype must be %s, got %q", TypeUpdate, msg.WorldModelType)
	}

	switch msg.Operation {
	case OpCreate:
		return msg.create()

	case OpAddRemoteRootNode, OpCreateRemoteRootNode:
		nodeID, err := msg.nodeID()
		if err != nil {
			return update.Mutation{}, err
		}
		return update.Mutation{Op: update.OpAddRemoteRootNode, ID: nodeID, Attributes: msg.Node.Attributes, Forced: true}, nil

	case OpUpdateAttributes:
		nodeID, err := msg.nodeID()
		if err != nil {
			return update.Mutation{}, err
		}
		stamp, err := msg.Node.TimeStamp.Value()
		if err != nil {
			return update.Mutation{}, err
		}
		return update.Mutation{Op: update.OpSetNodeAttributes, ID: nodeID, Attributes: msg.Node.Attributes, Stamp: stamp}, nil

	case OpSetTransform, OpUpdateTransform:
		nodeID, err := msg.nodeID()
		if err != nil {
			return update.Mutation{}, err
		}
		m := update.Mutation{Op: update.OpSetTransform, ID: nodeID}
		if m.Transform, err = msg.Node.Transform.Value(); err != nil {
			return update.Mutation{}, err
		}
		if m.Stamp, err = msg.Node.TimeStamp.Value(); err != nil {
			return update.Mutation{}, err
		}
		if msg.Node.Uncertainty != nil {
			m.Op = update.OpSetUncertainTransform
			if m.Uncertainty, err = msg.Node.Uncertainty.Value(); err != nil {
				return update.Mutation{}, err
			}
		}
		return m, nil

	case OpDelete:
		nodeID, err := msg.nodeID()
		if err != nil {
			return update.Mutation{}, err
		}
		return update.Mutation{Op: update.OpDeleteNode, ID: nodeID}, nil

	case OpAddParent, OpRemoveParent:
		if msg.ParentID == nil || msg.ParentID.IsNil() {
			return update.Mutation{}, fmt.Errorf("%s needs a parentId", msg.Operation)
		}
		childID := msg.ChildID
		if childID == nil && msg.Node != nil {
			childID = msg.Node.ID
		}
		if childID == nil || childID.IsNil() {
			return update.Mutation{}, fmt.Errorf("%s needs a childId", msg.Operation)
		}
		op := update.OpAddParent
		if msg.Operation == OpRemoveParent {
			op = update.OpRemoveParent
		}
		return update.Mutation{Op: op, ID: *childID, ParentID: *msg.ParentID}, nil

	case "":
		return update.Mutation{}, fmt.Errorf("missing operation")

	default:
		return update.Mutation{}, fmt.Errorf("unknown operation %q", msg.Operation)
	}
}

func (msg Message) create() (update.Mutation, error) {
	if msg.Node == nil {
		return update.Mutation{}, fmt.Errorf("CREATE needs a node")
	}
	if msg.ParentID == nil || msg.ParentID.IsNil() {
		return update.Mutation{}, fmt.Errorf("CREATE needs a parentId")
	}
	n := msg.Node
	m := update.Mutation{ParentID: *msg.ParentID, Attributes: n.Attributes}
	if n.ID != nil && !n.ID.IsNil() {
		m.ID = *n.ID
		m.Forced = true
	}

	var err error
	switch n.GraphType {
	case GraphNode:
		m.Op = update.OpAddNode
	case GraphGroup:
		m.Op = update.OpAddGroup
	case GraphTransform:
		m.Op = update.OpAddTransformNode
		if m.Transform, err = n.Transform.Value(); err != nil {
			return update.Mutation{}, err
		}
		if m.Stamp, err = n.TimeStamp.Value(); err != nil {
			return update.Mutation{}, err
		}
		if n.Uncertainty != nil {
			m.Op = update.OpAddUncertainTransformNode
			if m.Uncertainty, err = n.Uncertainty.Value(); err != nil {
				return update.Mutation{}, err
			}
		}
	case GraphGeometricNode:
		m.Op = update.OpAddGeometricNode
		if m.Shape, err = n.Geometry.Value(); err != nil {
			return update.Mutation{}, err
		}
		if m.Stamp, err = n.TimeStamp.Value(); err != nil {
			return update.Mutation{}, err
		}
	case GraphConnection:
		m.Op = update.OpAddConnection
		m.SourceIDs = n.SourceIDs
		m.TargetIDs = n.TargetIDs
		if m.Start, err = n.Start.Value(); err != nil {
			return update.Mutation{}, err
		}
		if m.End, err = n.End.Value(); err != nil {
			return update.Mutation{}, err
		}
	case "":
		return update.Mutation{}, fmt.Errorf("node needs a @graphtype")
	default:
		return update.Mutation{}, fmt.Errorf("unknown @graphtype %q", n.GraphType)
	}
	return m, nil
}

func (msg Message) nodeID() (id.ID, error) {
	if msg.Node == nil || msg.Node.ID == nil || msg.Node.ID.IsNil() {
		return id.Nil, fmt.Errorf("%s needs a node id", msg.Operation)
	}
	return *msg.Node.ID, nil
}
