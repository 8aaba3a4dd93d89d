// Package id provides identifiers for entities in the Robot Scene Graph.
//
// Every node, group, transform, geometric node, connection and remote root in
// the world model is addressed by an ID. IDs are 128-bit UUIDs rendered as
// canonical lowercase strings (8-4-4-4-12). Two values are reserved:
//
//   - Nil: the all-zero UUID, used as the invalid/unset sentinel
//   - Root: the fixed well-known ID of the scene graph root
//
// IDs are either generated by the store (random, version 4) or supplied by the
// caller as a "forced" ID so that replicas in different processes share the
// same identity for the same entity. Generator.FromName derives stable
// version 5 IDs for identities agreed on out of band.
//
// # Usage
//
//	gen := id.NewGenerator()
//	nodeID := gen.New()
//
//	parsed, err := id.Parse("9a0364b9-e99b-4a5e-a2b6-bb0da1e1ba8e")
//	if err != nil {
//	    return err
//	}
//
//	if parsed.IsNil() {
//	    // reject
//	}
package id
