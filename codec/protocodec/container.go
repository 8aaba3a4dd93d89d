// Package protocodec is the binary-container codec of the scene graph.
//
// Each mutation becomes one self-contained hierarchical container, a
// protobuf Struct with a single top-level "Scene" group. The Scene group
// carries the command type and parent linkage, and one nested group named
// "<Kind>-<id>" carries the typed payload:
//
//	Scene
//	├── commandType: "ADD"
//	├── parentId:    "00000000-0000-0000-0000-000000000001"
//	└── Transform-<id>
//	    ├── nodeType:   "Transform"
//	    ├── id:         "<id>"
//	    ├── attributes: [{key, value}]
//	    ├── transform:  [16 numbers, row-major]
//	    └── timeStamp:  <ms>
//
// The container is marshaled deterministically straight into memory and
// handed to the port as one message. The codec is write-only; Describe
// renders an image as JSON for debugging.
package protocodec

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/types"
	"github.com/zero-day-ai/rsg/update"
)

// Command types stored in Scene.commandType.
const (
	CommandAdd               = "ADD"
	CommandAddRemoteRootNode = "ADD_REMOTE_ROOT_NODE"
	CommandSetAttributes     = "SET_ATTRIBUTES"
	CommandSetTransform      = "SET_TRANSFORM"
	CommandDelete            = "DELETE"
	CommandAddParent         = "ADD_PARENT"
	CommandRemoveParent      = "REMOVE_PARENT"
)

// SceneGroup is the name of the top-level group.
const SceneGroup = "Scene"

// ErrUncertaintyUnsupported is returned for uncertain transform mutations.
var ErrUncertaintyUnsupported = errors.New("uncertain transforms are not supported by the binary container")

// GroupName returns the nested group name used for m, e.g. "Group-<id>".
func GroupName(m update.Mutation) (string, error) {
	prefix := ""
	switch m.Op {
	case update.OpAddNode, update.OpDeleteNode:
		prefix = "Node-"
	case update.OpAddGroup:
		prefix = "Group-"
	case update.OpAddTransformNode:
		prefix = "Transform-"
	case update.OpAddGeometricNode:
		prefix = "GeometricNode-"
	case update.OpAddConnection:
		prefix = "Connection-"
	case update.OpAddRemoteRootNode:
		prefix = "RemoteRootNode-"
	case update.OpSetNodeAttributes:
		prefix = "Attribute-Update-"
	case update.OpSetTransform:
		prefix = "Transform-Update-"
	case update.OpAddParent, update.OpRemoveParent:
		prefix = "Parent-Child-Relation-"
	case update.OpAddUncertainTransformNode, update.OpSetUncertainTransform:
		return "", ErrUncertaintyUnsupported
	default:
		return "", fmt.Errorf("unsupported mutation %q", m.Op)
	}
	return prefix + m.ID.String(), nil
}

// Container builds the container for m.
func Container(m update.Mutation) (*structpb.Struct, error) {
	name, err := GroupName(m)
	if err != nil {
		return nil, err
	}

	scene := map[string]any{}
	group := map[string]any{"id": m.ID.String()}

	switch m.Op {
	case update.OpAddNode, update.OpAddGroup, update.OpAddTransformNode, update.OpAddGeometricNode, update.OpAddConnection:
		scene["commandType"] = CommandAdd
		scene["parentId"] = m.ParentID.String()
		group["nodeType"] = nodeType(m.Op)
		group["attributes"] = attributes(m.Attributes)
		switch m.Op {
		case update.OpAddTransformNode:
			group["transform"] = matrix(m.Transform)
			group["timeStamp"] = m.Stamp.Millis()
		case update.OpAddGeometricNode:
			shape, err := shapeGroup(m.Shape)
			if err != nil {
				return nil, err
			}
			group["shape"] = shape
			group["timeStamp"] = m.Stamp.Millis()
		case update.OpAddConnection:
			group["sourceIds"] = ids(m.SourceIDs)
			group["targetIds"] = ids(m.TargetIDs)
			group["start"] = m.Start.Millis()
			group["end"] = m.End.Millis()
		}
	case update.OpAddRemoteRootNode:
		scene["commandType"] = CommandAddRemoteRootNode
		group["nodeType"] = "RemoteRootNode"
		group["attributes"] = attributes(m.Attributes)
	case update.OpSetNodeAttributes:
		scene["commandType"] = CommandSetAttributes
		group["attributes"] = attributes(m.Attributes)
		group["attributesTimeStamp"] = m.Stamp.Millis()
	case update.OpSetTransform:
		scene["commandType"] = CommandSetTransform
		group["transform"] = matrix(m.Transform)
		group["timeStamp"] = m.Stamp.Millis()
	case update.OpDeleteNode:
		scene["commandType"] = CommandDelete
	case update.OpAddParent, update.OpRemoveParent:
		scene["commandType"] = CommandAddParent
		if m.Op == update.OpRemoveParent {
			scene["commandType"] = CommandRemoveParent
		}
		scene["parentId"] = m.ParentID.String()
	}
	scene[name] = group

	return structpb.NewStruct(map[string]any{SceneGroup: scene})
}

// Marshal renders a container as its deterministic byte image.
func Marshal(container *structpb.Struct) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(container)
}

// Unmarshal parses a byte image back into a container.
func Unmarshal(b []byte) (*structpb.Struct, error) {
	container := &structpb.Struct{}
	if err := proto.Unmarshal(b, container); err != nil {
		return nil, err
	}
	return container, nil
}

// Describe renders a byte image as indented JSON.
func Describe(b []byte) (string, error) {
	container, err := Unmarshal(b)
	if err != nil {
		return "", err
	}
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(container)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func nodeType(op update.Op) string {
	switch op {
	case update.OpAddGroup:
		return "Group"
	case update.OpAddTransformNode:
		return "Transform"
	case update.OpAddGeometricNode:
		return "GeometricNode"
	case update.OpAddConnection:
		return "Connection"
	default:
		return "Node"
	}
}

func attributes(attrs types.Attributes) []any {
	out := make([]any, len(attrs))
	for i, a := range attrs {
		out[i] = map[string]any{"key": a.Key, "value": a.Value}
	}
	return out
}

func matrix(m types.Matrix44) []any {
	out := make([]any, len(m))
	for i, v := range m {
		out[i] = v
	}
	return out
}

func ids(in []id.ID) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v.String()
	}
	return out
}

func points(in []types.Point3D) []any {
	out := make([]any, 0, len(in)*3)
	for _, p := range in {
		out = append(out, p.X, p.Y, p.Z)
	}
	return out
}

func shapeGroup(s types.Shape) (map[string]any, error) {
	g := map[string]any{"type": string(s.Kind()), "unit": "m"}
	switch s.Kind() {
	case types.ShapeBox:
		g["sizeX"], g["sizeY"], g["sizeZ"] = s.Box.SizeX, s.Box.SizeY, s.Box.SizeZ
	case types.ShapeCylinder:
		g["radius"], g["height"] = s.Cylinder.Radius, s.Cylinder.Height
	case types.ShapeSphere:
		g["radius"] = s.Sphere.Radius
	case types.ShapePointCloud:
		g["points"] = points(s.PointCloud.Points)
	case types.ShapeMesh:
		g["vertices"] = points(s.Mesh.Vertices)
		tris := make([]any, 0, len(s.Mesh.Triangles)*3)
		for _, t := range s.Mesh.Triangles {
			tris = append(tris, float64(t[0]), float64(t[1]), float64(t[2]))
		}
		g["triangles"] = tris
	default:
		return nil, fmt.Errorf("shape has no variant")
	}
	return g, nil
}
