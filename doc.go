// Package rsg assembles a Robot Scene Graph replica from its configuration.
//
// The scene graph itself lives in the scene package: a DAG of groups,
// transforms, geometry and connections with append-only history. This
// package wires a store to the adapters that make it useful in a robot
// deployment:
//
//   - query: RSGQuery and RSGUpdate messages answered against the store
//   - codec/jsoncodec, codec/protocodec: textual and binary update encoders
//   - queue: Redis output ports and a subscriber applying remote updates
//   - journal: a BadgerDB log of every update, replayed on start
//   - registry: etcd federation turning peer replicas into remote roots
//   - filter: CEL expressions selecting which updates go in and out
//
// # Getting Started
//
// Describe the replica in rsg.yaml:
//
//	replica: arm
//	redis:
//	  url: redis://localhost:6379
//	  channel: rsg:updates
//	  subscribe: true
//	journal:
//	  path: /var/lib/rsg/arm
//
// and run it:
//
//	wm, err := rsg.New(ctx, rsg.WithConfigFile("rsg.yaml"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer wm.Close()
//
//	table, err := wm.Store().AddGroup(ctx, id.Root, types.Attrs("name", "table"))
//	...
//	err = wm.Run(ctx) // blocks until ctx is done
//
// # Replication
//
// Every local mutation is encoded and sent to the configured Redis channel
// or list. Peers subscribing to it apply the update with the same IDs, so
// all replicas converge on one graph. Updates received from a peer are not
// sent out again.
//
// # Thread Safety
//
// The store serializes writers behind one lock and lets readers run
// concurrently. Observers are notified synchronously while the writer still
// holds the lock, so they see mutations in commit order.
package rsg
