// Package gate races two one-shot signals on a notify.Source and settles a
// single result from whichever fires first.
//
// # Lifecycle
//
// [Open] registers one listener for the success signal and one for the failure
// signal of a [notify.Pair]. The gate starts [Pending] and settles exactly once:
//
//   - If the success signal fires first, the gate becomes [Succeeded].
//   - If the failure signal fires first, the gate becomes [Failed] and reports
//     a [*FailureError] naming the failure signal.
//   - If the owner calls [Gate.Close] before either fires, the gate becomes
//     [Abandoned].
//
// Whichever handler settles the gate removes its sibling listener before the
// gate reports the outcome. The settling listener itself is removed by the
// source, because registrations are one-shot. Once [Gate.Done] is closed, the
// source therefore holds no listener belonging to the gate, whatever the
// outcome. This matters because the source is owned by somebody else: a
// leftover listener would keep the gate, and everything it references, alive
// for as long as the source lives.
//
// Signals may fire while Open is still registering. A signal fired between the
// two registrations settles the gate, and the late registration is removed as
// soon as it returns.
//
// # Waiting
//
// The channel returned by [Gate.Done] closes on settlement, so a gate composes
// with select statements:
//
//	g, err := gate.Open(src, notify.Pair{Success: "ready", Failure: "error"})
//	if err != nil {
//	    return err
//	}
//	select {
//	case <-g.Done():
//	    return g.Err()
//	case <-ctx.Done():
//	    g.Close() // Important: removes both listeners
//	    return ctx.Err()
//	}
//
// [Await] and [Gate.Wait] implement exactly that pattern.
//
// A gate imposes no timeout on its own. Callers needing bounded waiting race
// the gate against a context deadline or a timer, and Close the gate when the
// timer wins.
package gate
