// Package traversal bounds graph and tree walks.
//
// A Guardian carries the bookkeeping of one walk: the visited set, the
// deepest level reached, the number of steps taken and the elapsed time.
// Callers ask it before every step whether they may continue and whether a
// node has been seen before:
//
//	g := traversal.NewGuardian[string](traversal.Config{MaxDepth: 20})
//	if !g.CanContinue(depth, g.Iterations(), g.Elapsed()) {
//	    return partial
//	}
//	if g.DetectCycle(id) {
//	    return partial
//	}
//
// Walk does the same with an explicit stack and an outer timeout. Hitting a
// bound or a cycle is never an error: the walk returns what it has.
package traversal
