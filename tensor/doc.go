// Package tensor provides the minimal matrix and minibatch layout types the
// prefetch pipeline fills. Arithmetic is out of scope; Matrix.View exposes a
// gonum view for callers that need it.
package tensor
