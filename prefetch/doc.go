// Package prefetch overlaps the next read with the current compute step.
//
// A Task is a one-shot result slot: it is launched once and joined once (or
// any number of times; every Wait returns the same result). An Engine owns at
// most one in-flight Task and tracks its lifecycle:
//
//	Idle -> Prefetching -> Ready -> Idle
//	          \-> Draining (bounded wait on teardown)
//
// Tasks are launched either asynchronously, on their own goroutine, or
// synchronously, inline in the call that launches them. Both modes produce
// identical results; only the overlap differs.
package prefetch
