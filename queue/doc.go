// Package queue carries encoded scene graph updates between replicas over
// Redis.
//
// A replica's store publishes every committed mutation through a codec into
// a Port, which wraps the message in an Envelope and publishes it to a
// pub/sub channel or pushes it onto a list. On the other side a Subscriber
// receives envelopes and feeds each textual message into a query runner,
// which applies RSGUpdate messages to the local store and answers RSGQuery
// messages.
//
// # Core Components
//
// Client: Interface over Redis. Provides:
//   - Push/Pop for list delivery (LPUSH/BRPOP, one consumer per message)
//   - Publish/Subscribe for fan-out delivery
//   - Heartbeat/Alive for replica liveness
//
// Envelope: one encoded message plus its origin replica and sequence number.
//
// Port: a port.Writer publishing each message it is handed.
//
// Subscriber: the receive loop feeding a Handler.
//
// # Redis Key Schema
//
//   - <channel> - Pub/Sub channel carrying envelopes, e.g. rsg:updates
//   - <list> - List carrying envelopes (LPUSH/BRPOP)
//   - rsg:replica:<name>:health - String with TTL, refreshed by Heartbeat
//
// # Usage
//
// Publishing a replica's updates:
//
//	client, err := queue.NewRedisClient(queue.RedisOptions{URL: "redis://localhost:6379"})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	out, err := queue.NewPort(client, queue.PortOptions{Replica: "arm", Channel: "rsg:updates"})
//	if err != nil {
//		return err
//	}
//	store.Dispatcher().Register(jsoncodec.NewEncoder(out))
//
// Applying another replica's updates:
//
//	sub, err := queue.NewSubscriber(client, query.NewRunner(store), queue.SubscriberOptions{
//		Replica: "base",
//		Channel: "rsg:updates",
//	})
//	if err != nil {
//		return err
//	}
//	go sub.Run(ctx)
//
// Envelopes published by the subscribing replica itself are skipped, so
// replicas may share one channel.
package queue
