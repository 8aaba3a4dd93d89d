package scene

import (
	"sort"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/types"
)

// Kind is the closed set of graph entity variants.
type Kind string

const (
	KindNode          Kind = "Node"
	KindGroup         Kind = "Group"
	KindTransform     Kind = "Transform"
	KindGeometricNode Kind = "GeometricNode"
	KindConnection    Kind = "Connection"
)

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// IsContainer reports whether entities of this kind may have children.
func (k Kind) IsContainer() bool {
	return k == KindGroup || k == KindTransform
}

// AttributeVersion is one entry of a node's attribute history.
type AttributeVersion struct {
	Attributes types.Attributes
	Stamp      types.TimeStamp
}

// TransformVersion is one entry of a transform's history. Uncertainty is
// set for versions written by the uncertain variants.
type TransformVersion struct {
	Matrix      types.Matrix44
	Uncertainty *types.Uncertainty
	Stamp       types.TimeStamp
}

// Connection is the payload of a connection entity.
type Connection struct {
	SourceIDs []id.ID
	TargetIDs []id.ID
	Start     types.TimeStamp
	End       types.TimeStamp
}

// ValidAt reports whether the connection is valid at ts. A zero End never
// expires.
func (c Connection) ValidAt(ts types.TimeStamp) bool {
	if ts.Before(c.Start) {
		return false
	}
	return c.End.IsZero() || !ts.After(c.End)
}

type transformPayload struct {
	history []TransformVersion
}

type geometryPayload struct {
	shape types.Shape
	stamp types.TimeStamp
}

// entity is the tagged variant stored in the graph. Exactly one payload
// pointer matching kind is set for Transform, GeometricNode and Connection.
type entity struct {
	id         id.ID
	kind       Kind
	attributes []AttributeVersion
	parents    []id.ID
	children   []id.ID

	transform  *transformPayload
	geometry   *geometryPayload
	connection *Connection
}

func newEntity(nodeID id.ID, kind Kind, attrs types.Attributes, stamp types.TimeStamp) *entity {
	return &entity{
		id:         nodeID,
		kind:       kind,
		attributes: []AttributeVersion{{Attributes: attrs.Clone(), Stamp: stamp}},
	}
}

func (e *entity) currentAttributes() types.Attributes {
	if len(e.attributes) == 0 {
		return types.Attributes{}
	}
	return e.attributes[len(e.attributes)-1].Attributes
}

func (e *entity) hasParent(parentID id.ID) bool {
	return indexOf(e.parents, parentID) >= 0
}

// transformAt selects the version with the greatest stamp not after ts.
// A zero ts selects the greatest stamp overall; when every version is newer
// than ts the oldest one is used. Ties go to the later insert.
func (p *transformPayload) transformAt(ts types.TimeStamp) types.Matrix44 {
	var (
		best, oldest     int = -1, -1
		bestTS, oldestTS types.TimeStamp
	)
	for i, v := range p.history {
		if oldest < 0 || v.Stamp.Before(oldestTS) {
			oldest, oldestTS = i, v.Stamp
		}
		if !ts.IsZero() && v.Stamp.After(ts) {
			continue
		}
		if best < 0 || !v.Stamp.Before(bestTS) {
			best, bestTS = i, v.Stamp
		}
	}
	switch {
	case best >= 0:
		return p.history[best].Matrix
	case oldest >= 0:
		return p.history[oldest].Matrix
	default:
		return types.Identity()
	}
}

func (p *transformPayload) uncertaintyAt(ts types.TimeStamp) (types.Uncertainty, bool) {
	best := -1
	var bestTS types.TimeStamp
	for i, v := range p.history {
		if v.Uncertainty == nil || (!ts.IsZero() && v.Stamp.After(ts)) {
			continue
		}
		if best < 0 || !v.Stamp.Before(bestTS) {
			best, bestTS = i, v.Stamp
		}
	}
	if best < 0 {
		return types.Uncertainty{}, false
	}
	return *p.history[best].Uncertainty, true
}

func (p *transformPayload) sortedHistory() []TransformVersion {
	out := make([]TransformVersion, len(p.history))
	for i, v := range p.history {
		out[i] = v
		if v.Uncertainty != nil {
			u := *v.Uncertainty
			out[i].Uncertainty = &u
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Stamp.Before(out[j].Stamp)
	})
	return out
}

func indexOf(ids []id.ID, target id.ID) int {
	for i, v := range ids {
		if v == target {
			return i
		}
	}
	return -1
}

func without(ids []id.ID, target id.ID) []id.ID {
	i := indexOf(ids, target)
	if i < 0 {
		return ids
	}
	out := make([]id.ID, 0, len(ids)-1)
	out = append(out, ids[:i]...)
	return append(out, ids[i+1:]...)
}

func cloneIDs(ids []id.ID) []id.ID {
	out := make([]id.ID, len(ids))
	copy(out, ids)
	return out
}
