// Package eventdependent defers a group of operations until a readiness signal
// has been observed on a notify.Source, and fails them if a failure signal
// arrives first.
//
// # Why This Package Exists
//
// Clients of things that become usable asynchronously (connections, caches
// warming up, leaders being elected) usually announce readiness with a signal.
// Calling into such a client before the signal is an error, and checking for
// readiness in front of every method is noise. This package moves the check
// into a wrapper: every wrapped operation waits for readiness on its first
// use, and runs directly afterwards.
//
// # Group-Wide Gating
//
// Operations are gated as a group, not one by one. A [Group] holds the gate
// state for all of its members:
//
//   - The first call to any member starts a gate attempt racing the success
//     signal against the failure signal.
//   - Calls arriving while the attempt is pending, to the same or to other
//     members, share it. However many concurrent first calls there are, the
//     source sees exactly one success listener and one failure listener.
//   - Once the success signal fires the group is ungated for good. Every later
//     call of every member, including members never called before, runs its
//     operation without touching the source.
//   - If the failure signal fires first, every call sharing the attempt fails
//     with the same [*gate.FailureError]. The group stays gated and the next
//     call starts a fresh attempt; use [WithPoisonOnFailure] to make the first
//     failure final instead.
//
// Errors returned by the operations themselves are never interpreted: they
// reach the caller unchanged.
//
// # Usage
//
// Wrap a named set of operations at once:
//
//	ops, err := eventdependent.Wrap(&client, "ready", "error", eventdependent.OperationGroup{
//	    "get": func(ctx context.Context, args ...any) (any, error) {
//	        return client.Get(ctx, args[0].(string))
//	    },
//	})
//	v, err := ops["get"](ctx, "key")
//
// Or build a Group and wrap typed functions against it:
//
//	g, err := eventdependent.New(&client, notify.Pair{Success: "ready", Failure: "error"})
//	get := eventdependent.Func(g, "get", client.Get)
//	put := eventdependent.Func(g, "put", client.Put)
//
// # Timeouts and Cancellation
//
// A call whose context is done while waiting returns ctx.Err(), leaving the
// attempt to the other callers. An attempt itself has no deadline unless one
// is configured with [WithTimeout], in which case it ends with a
// [*TimeoutError] and removes its listeners once the timeout passes.
package eventdependent
