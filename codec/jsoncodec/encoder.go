package jsoncodec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/zero-day-ai/rsg/port"
	"github.com/zero-day-ai/rsg/rsgerr"
	"github.com/zero-day-ai/rsg/types"
	"github.com/zero-day-ai/rsg/update"
)

// Encoder renders every mutation it observes as one JSON message and writes
// it to its port. It implements update.Observer.
type Encoder struct {
	update.ObserverFunc

	port   port.Writer
	logger *slog.Logger
	indent bool
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithLogger sets the encoder's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Encoder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIndent pretty-prints messages, which is handy for debugging.
func WithIndent(indent bool) Option {
	return func(e *Encoder) {
		e.indent = indent
	}
}

// NewEncoder creates an Encoder writing to w. A nil w is allowed; every
// message is then logged and reported as a transport failure.
func NewEncoder(w port.Writer, opts ...Option) *Encoder {
	e := &Encoder{
		port:   w,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "jsoncodec")
	e.ObserverFunc = e.Encode
	return e
}

// Encode renders m and writes it to the port.
func (e *Encoder) Encode(ctx context.Context, m update.Mutation) error {
	const op = "jsoncodec.Encode"

	msg, err := MessageFor(m)
	if err != nil {
		e.logger.Error("cannot create a JSON serialization", "op", m.Op, "id", m.ID, "error", err)
		return rsgerr.Wrap(op, rsgerr.KindEncode, err)
	}

	var payload []byte
	if e.indent {
		payload, err = json.MarshalIndent(msg, "", "  ")
	} else {
		payload, err = json.Marshal(msg)
	}
	if err != nil {
		e.logger.Error("cannot create a JSON serialization", "op", m.Op, "id", m.ID, "error", err)
		return rsgerr.Wrap(op, rsgerr.KindEncode, err)
	}

	if e.port == nil {
		e.logger.Warn("message could not be sent as the output port is not specified", "message", string(payload))
		return rsgerr.New(op, rsgerr.KindTransport, "no output port")
	}
	status, written := e.port.Write(payload)
	e.logger.Debug("message sent", "operation", msg.Operation, "bytes", written)
	if status < 0 {
		return rsgerr.New(op, rsgerr.KindTransport, "output port returned status %d", status)
	}
	return nil
}

// MessageFor renders a mutation as an RSGUpdate message.
func MessageFor(m update.Mutation) (Message, error) {
	msg := Message{WorldModelType: TypeUpdate}
	node := &Node{ID: idPtr(m.ID), Attributes: nonNil(m.Attributes)}

	switch m.Op {
	case update.OpAddNode, update.OpAddGroup, update.OpAddTransformNode, update.OpAddUncertainTransformNode,
		update.OpAddGeometricNode, update.OpAddConnection:
		msg.Operation = OpCreate
		msg.ParentID = idPtr(m.ParentID)
		if err := fillCreate(node, m); err != nil {
			return Message{}, err
		}
	case update.OpAddRemoteRootNode:
		msg.Operation = OpAddRemoteRootNode
		node.GraphType = GraphRemoteRootNode
	case update.OpSetNodeAttributes:
		msg.Operation = OpUpdateAttributes
		node.GraphType = GraphNode
		node.TimeStamp = NewTimeStamp(m.Stamp)
	case update.OpSetTransform:
		msg.Operation = OpSetTransform
		node.GraphType = GraphTransform
		node.Attributes = nil
		node.Transform = NewMatrix(m.Transform)
		node.TimeStamp = NewTimeStamp(m.Stamp)
	case update.OpSetUncertainTransform:
		msg.Operation = OpSetTransform
		node.GraphType = GraphTransform
		node.Attributes = nil
		node.Transform = NewMatrix(m.Transform)
		node.Uncertainty = NewUncertainty(m.Uncertainty)
		node.TimeStamp = NewTimeStamp(m.Stamp)
	case update.OpDeleteNode:
		msg.Operation = OpDelete
		node.GraphType = GraphNode
		node.Attributes = nil
	case update.OpAddParent, update.OpRemoveParent:
		msg.Operation = OpAddParent
		if m.Op == update.OpRemoveParent {
			msg.Operation = OpRemoveParent
		}
		msg.ParentID = idPtr(m.ParentID)
		msg.ChildID = idPtr(m.ID)
		node = nil
	default:
		return Message{}, fmt.Errorf("unsupported mutation %q", m.Op)
	}

	msg.Node = node
	return msg, nil
}

func fillCreate(node *Node, m update.Mutation) error {
	switch m.Op {
	case update.OpAddNode:
		node.GraphType = GraphNode
	case update.OpAddGroup:
		node.GraphType = GraphGroup
	case update.OpAddTransformNode:
		node.GraphType = GraphTransform
		node.Transform = NewMatrix(m.Transform)
		node.TimeStamp = NewTimeStamp(m.Stamp)
	case update.OpAddUncertainTransformNode:
		node.GraphType = GraphTransform
		node.Transform = NewMatrix(m.Transform)
		node.Uncertainty = NewUncertainty(m.Uncertainty)
		node.TimeStamp = NewTimeStamp(m.Stamp)
	case update.OpAddGeometricNode:
		geometry, err := NewGeometry(m.Shape)
		if err != nil {
			return err
		}
		node.GraphType = GraphGeometricNode
		node.Geometry = geometry
		node.TimeStamp = NewTimeStamp(m.Stamp)
	case update.OpAddConnection:
		node.GraphType = GraphConnection
		node.SourceIDs = m.SourceIDs
		node.TargetIDs = m.TargetIDs
		node.Start = NewTimeStamp(m.Start)
		node.End = NewTimeStamp(m.End)
	}
	return nil
}

func nonNil(attrs types.Attributes) types.Attributes {
	if attrs == nil {
		return types.Attributes{}
	}
	return attrs
}
