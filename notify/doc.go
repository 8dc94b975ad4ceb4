// Package notify defines the capability a gate needs from a notifying object,
// and provides an in-process implementation of it.
//
// # The Source Contract
//
// A [Source] offers exactly two operations:
//
//   - Once registers a one-shot handler for a named signal and returns a
//     [ListenerID] identifying the registration.
//   - Off removes a previously registered listener.
//
// One-shot means the listener is removed from the source before its handler
// runs, so a handler never runs twice and a fired listener is never counted by
// [Counter.ListenerCount]. Removing an unknown or already-fired listener is a
// no-op.
//
// Nothing else is required. In particular, a Source is never owned by the code
// that subscribes to it: the subscriber only keeps it referenced while it has
// listeners registered, which is why subscribers must remove what they add.
//
// # Sources In This Module
//
//   - [Emitter]: an in-process source in the style of an event emitter. The
//     zero value is ready to use and handlers run on the emitting goroutine.
//   - hubsource: topics of a juju pubsub SimpleHub.
//   - redissource: Redis PUB/SUB channels.
//   - pgsource: PostgreSQL LISTEN/NOTIFY channels.
//
// # Signal Pairs
//
// Gating always involves two signals: one announcing readiness and one
// announcing failure. A [Pair] names them. The two names must differ; a pair
// with a shared name cannot tell the outcomes apart and is rejected by
// [Pair.Validate].
package notify
