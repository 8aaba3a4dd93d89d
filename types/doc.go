// Package types holds the value types of the scene graph: attributes,
// time stamps, homogeneous transforms, uncertainty and geometry shapes.
//
// All types are plain values. Attributes and shapes are copied on the way
// into and out of a store, so callers may keep and modify their own slices.
//
//	attrs := types.Attrs("name", "cup", "color", "red")
//	pose := types.Translation(0.4, 0.1, 0.75)
//	stamp := types.FromMillis(1700000000000)
//	cup := types.NewCylinder(0.04, 0.1)
package types
