// Package broker owns the process-wide link to RabbitMQ.
//
// A Manager holds one connection and one channel, watches both for
// broker-initiated closure and exposes the resulting State. Every channel
// the Manager installs gets a new generation number; a Provisioner caches
// queue assertions per generation so a recreated channel re-declares its
// queues before the next publish. A Publisher sends command envelopes as
// persistent messages, making at most one reconnection attempt when the
// link is down.
package broker
