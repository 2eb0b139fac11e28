// Package reader defines the contract between the minibatch prefetch
// pipeline and the data reader feeding it, and contains several Reader
// implementations for common scenarios:
//
// - Memory: in-memory corpus, cut into epochs and sharded across workers
// - Channel: for feeding minibatches from an existing channel
// - Error: for simulating a failing reader
// - Nil: for testing timing behavior without producing data
//
// Synthetic builds a Memory reader over generated data.
package reader
