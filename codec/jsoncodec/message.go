// Package jsoncodec is the textual codec of the scene graph: one
// self-describing JSON message per mutation.
//
// Every update message carries the top-level discriminator
// "@worldmodeltype":"RSGUpdate" and an operation:
//
//	{"@worldmodeltype":"RSGUpdate","operation":"CREATE","parentId":"...",
//	 "node":{"@graphtype":"Group","id":"...","attributes":[{"key":"name","value":"table"}]}}
//
// The Encoder renders committed mutations and writes them to a port.Writer;
// Apply decodes a received message and replays it into a store, always with
// forced IDs so that replicas share identities.
package jsoncodec

import (
	"fmt"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/types"
)

// Top-level model types.
const (
	TypeUpdate       = "RSGUpdate"
	TypeUpdateResult = "RSGUpdateResult"
	TypeQuery        = "RSGQuery"
	TypeQueryResult  = "RSGQueryResult"
)

// Update operations.
const (
	OpCreate               = "CREATE"
	OpAddRemoteRootNode    = "ADD_REMOTE_ROOT_NODE"
	OpCreateRemoteRootNode = "CREATE_REMOTE_ROOT_NODE"
	OpUpdateAttributes     = "UPDATE_ATTRIBUTES"
	OpSetTransform         = "SET_TRANSFORM"
	OpUpdateTransform      = "UPDATE_TRANSFORM"
	OpDelete               = "DELETE"
	OpAddParent            = "ADD_PARENT"
	OpRemoveParent         = "REMOVE_PARENT"
)

// Graph types carried in "@graphtype".
const (
	GraphNode           = "Node"
	GraphGroup          = "Group"
	GraphTransform      = "Transform"
	GraphGeometricNode  = "GeometricNode"
	GraphConnection     = "Connection"
	GraphRemoteRootNode = "RemoteRootNode"
)

const (
	stampTypeUTCms  = "TimeStampUTCms"
	matrixType      = "HomogeneousMatrix44"
	uncertaintyType = "Covariance6x6"
	unitMeters      = "m"
)

// Message is one RSGUpdate.
type Message struct {
	WorldModelType string `json:"@worldmodeltype"`
	Operation      string `json:"operation"`
	ParentID       *id.ID `json:"parentId,omitempty"`
	ChildID        *id.ID `json:"childId,omitempty"`
	Node           *Node  `json:"node,omitempty"`
}

// Node is the graph primitive inside a Message.
type Node struct {
	GraphType   string           `json:"@graphtype"`
	ID          *id.ID           `json:"id,omitempty"`
	Attributes  types.Attributes `json:"attributes,omitempty"`
	Transform   *Matrix          `json:"transform,omitempty"`
	Uncertainty *Uncertainty     `json:"uncertainty,omitempty"`
	TimeStamp   *TimeStamp       `json:"timeStamp,omitempty"`
	Geometry    *Geometry        `json:"geometry,omitempty"`
	SourceIDs   []id.ID          `json:"sourceIds,omitempty"`
	TargetIDs   []id.ID          `json:"targetIds,omitempty"`
	Start       *TimeStamp       `json:"start,omitempty"`
	End         *TimeStamp       `json:"end,omitempty"`
}

// TimeStamp is the wire form of types.TimeStamp.
type TimeStamp struct {
	StampType string  `json:"@stamptype"`
	Stamp     float64 `json:"stamp"`
}

// NewTimeStamp renders ts.
func NewTimeStamp(ts types.TimeStamp) *TimeStamp {
	return &TimeStamp{StampType: stampTypeUTCms, Stamp: ts.Millis()}
}

// Value converts back to types.TimeStamp. A nil receiver is the zero stamp.
func (t *TimeStamp) Value() (types.TimeStamp, error) {
	if t == nil {
		return types.TimeStamp{}, nil
	}
	if t.StampType != "" && t.StampType != stampTypeUTCms {
		return types.TimeStamp{}, fmt.Errorf("unsupported @stamptype %q", t.StampType)
	}
	return types.FromMillis(t.Stamp), nil
}

// Matrix is the wire form of types.Matrix44.
type Matrix struct {
	Type   string      `json:"type"`
	Matrix [][]float64 `json:"matrix"`
	Unit   string      `json:"unit"`
}

// NewMatrix renders m.
func NewMatrix(m types.Matrix44) *Matrix {
	return &Matrix{Type: matrixType, Matrix: m.Rows(), Unit: unitMeters}
}

// Value converts back to types.Matrix44.
func (m *Matrix) Value() (types.Matrix44, error) {
	if m == nil {
		return types.Matrix44{}, fmt.Errorf("missing transform")
	}
	if m.Type != "" && m.Type != matrixType {
		return types.Matrix44{}, fmt.Errorf("unsupported transform type %q", m.Type)
	}
	if m.Unit != "" && m.Unit != unitMeters {
		return types.Matrix44{}, fmt.Errorf("unsupported transform unit %q", m.Unit)
	}
	return types.MatrixFromRows(m.Matrix)
}

// Uncertainty is the wire form of types.Uncertainty.
type Uncertainty struct {
	Type   string      `json:"type"`
	Matrix [][]float64 `json:"matrix"`
}

// NewUncertainty renders u.
func NewUncertainty(u types.Uncertainty) *Uncertainty {
	rows := make([][]float64, 6)
	for r := range rows {
		rows[r] = append([]float64(nil), u[r*6:r*6+6]...)
	}
	return &Uncertainty{Type: uncertaintyType, Matrix: rows}
}

// Value converts back to types.Uncertainty.
func (u *Uncertainty) Value() (types.Uncertainty, error) {
	var out types.Uncertainty
	if len(u.Matrix) != 6 {
		return out, fmt.Errorf("uncertainty needs 6 rows, got %d", len(u.Matrix))
	}
	for r, row := range u.Matrix {
		if len(row) != 6 {
			return out, fmt.Errorf("uncertainty row %d needs 6 values, got %d", r, len(row))
		}
		copy(out[r*6:r*6+6], row)
	}
	return out, nil
}

// Geometry is the wire form of types.Shape. Only the fields of the variant
// named by GeomType are set.
type Geometry struct {
	GeomType  string           `json:"@geomtype"`
	SizeX     float64          `json:"sizeX,omitempty"`
	SizeY     float64          `json:"sizeY,omitempty"`
	SizeZ     float64          `json:"sizeZ,omitempty"`
	Radius    float64          `json:"radius,omitempty"`
	Height    float64          `json:"height,omitempty"`
	Points    []types.Point3D  `json:"points,omitempty"`
	Vertices  []types.Point3D  `json:"vertices,omitempty"`
	Triangles []types.Triangle `json:"triangles,omitempty"`
	Unit      string           `json:"unit"`
}

// NewGeometry renders s.
func NewGeometry(s types.Shape) (*Geometry, error) {
	g := &Geometry{GeomType: string(s.Kind()), Unit: unitMeters}
	switch s.Kind() {
	case types.ShapeBox:
		g.SizeX, g.SizeY, g.SizeZ = s.Box.SizeX, s.Box.SizeY, s.Box.SizeZ
	case types.ShapeCylinder:
		g.Radius, g.Height = s.Cylinder.Radius, s.Cylinder.Height
	case types.ShapeSphere:
		g.Radius = s.Sphere.Radius
	case types.ShapePointCloud:
		g.Points = s.PointCloud.Points
	case types.ShapeMesh:
		g.Vertices, g.Triangles = s.Mesh.Vertices, s.Mesh.Triangles
	default:
		return nil, fmt.Errorf("shape has no variant")
	}
	return g, nil
}

// Value converts back to types.Shape.
func (g *Geometry) Value() (types.Shape, error) {
	if g == nil {
		return types.Shape{}, fmt.Errorf("missing geometry")
	}
	if g.Unit != "" && g.Unit != unitMeters {
		return types.Shape{}, fmt.Errorf("unsupported geometry unit %q", g.Unit)
	}
	var s types.Shape
	switch types.ShapeKind(g.GeomType) {
	case types.ShapeBox:
		s = types.NewBox(g.SizeX, g.SizeY, g.SizeZ)
	case types.ShapeCylinder:
		s = types.NewCylinder(g.Radius, g.Height)
	case types.ShapeSphere:
		s = types.NewSphere(g.Radius)
	case types.ShapePointCloud:
		s = types.NewPointCloud(g.Points)
	case types.ShapeMesh:
		s = types.NewMesh(g.Vertices, g.Triangles)
	default:
		return types.Shape{}, fmt.Errorf("unknown @geomtype %q", g.GeomType)
	}
	return s, s.Validate()
}

func idPtr(v id.ID) *id.ID {
	return &v
}
