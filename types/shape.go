package types

import (
	"fmt"
)

// ShapeKind discriminates the closed set of geometry variants.
type ShapeKind string

const (
	ShapeBox        ShapeKind = "Box"
	ShapeCylinder   ShapeKind = "Cylinder"
	ShapeSphere     ShapeKind = "Sphere"
	ShapePointCloud ShapeKind = "PointCloud3D"
	ShapeMesh       ShapeKind = "Mesh"
)

// Point3D is a point in meters.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Triangle indexes three vertices of a Mesh.
type Triangle [3]int

// Shape is the immutable geometry carried by a geometric node.
// Exactly one variant pointer is set; Kind reports which.
type Shape struct {
	Box        *Box
	Cylinder   *Cylinder
	Sphere     *Sphere
	PointCloud *PointCloud
	Mesh       *Mesh
}

// Box is an axis-aligned box centered on its frame, sizes in meters.
type Box struct {
	SizeX, SizeY, SizeZ float64
}

// Cylinder is centered on its frame with its axis along z.
type Cylinder struct {
	Radius, Height float64
}

// Sphere is centered on its frame.
type Sphere struct {
	Radius float64
}

// PointCloud is an unordered set of points.
type PointCloud struct {
	Points []Point3D
}

// Mesh is a triangle mesh.
type Mesh struct {
	Vertices  []Point3D
	Triangles []Triangle
}

// NewBox creates a box shape.
func NewBox(x, y, z float64) Shape {
	return Shape{Box: &Box{SizeX: x, SizeY: y, SizeZ: z}}
}

// NewCylinder creates a cylinder shape.
func NewCylinder(radius, height float64) Shape {
	return Shape{Cylinder: &Cylinder{Radius: radius, Height: height}}
}

// NewSphere creates a sphere shape.
func NewSphere(radius float64) Shape {
	return Shape{Sphere: &Sphere{Radius: radius}}
}

// NewPointCloud creates a point cloud shape owning a copy of points.
func NewPointCloud(points []Point3D) Shape {
	cp := make([]Point3D, len(points))
	copy(cp, points)
	return Shape{PointCloud: &PointCloud{Points: cp}}
}

// NewMesh creates a mesh shape owning copies of its buffers.
func NewMesh(vertices []Point3D, triangles []Triangle) Shape {
	v := make([]Point3D, len(vertices))
	copy(v, vertices)
	tr := make([]Triangle, len(triangles))
	copy(tr, triangles)
	return Shape{Mesh: &Mesh{Vertices: v, Triangles: tr}}
}

// Kind returns the variant tag, or "" for the empty shape.
func (s Shape) Kind() ShapeKind {
	switch {
	case s.Box != nil:
		return ShapeBox
	case s.Cylinder != nil:
		return ShapeCylinder
	case s.Sphere != nil:
		return ShapeSphere
	case s.PointCloud != nil:
		return ShapePointCloud
	case s.Mesh != nil:
		return ShapeMesh
	default:
		return ""
	}
}

// Validate checks that exactly one variant is set with sane dimensions.
func (s Shape) Validate() error {
	set := 0
	for _, present := range []bool{s.Box != nil, s.Cylinder != nil, s.Sphere != nil, s.PointCloud != nil, s.Mesh != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("shape must have exactly one variant, has %d", set)
	}
	switch s.Kind() {
	case ShapeBox:
		if s.Box.SizeX < 0 || s.Box.SizeY < 0 || s.Box.SizeZ < 0 {
			return fmt.Errorf("box sizes must be non-negative")
		}
	case ShapeCylinder:
		if s.Cylinder.Radius < 0 || s.Cylinder.Height < 0 {
			return fmt.Errorf("cylinder dimensions must be non-negative")
		}
	case ShapeSphere:
		if s.Sphere.Radius < 0 {
			return fmt.Errorf("sphere radius must be non-negative")
		}
	case ShapeMesh:
		for i, tri := range s.Mesh.Triangles {
			for _, v := range tri {
				if v < 0 || v >= len(s.Mesh.Vertices) {
					return fmt.Errorf("mesh triangle %d references vertex %d out of range", i, v)
				}
			}
		}
	}
	return nil
}
