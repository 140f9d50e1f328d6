// Package storage binds persistent models to named collections of a shared
// storage connection and streams large write batches into them.
//
// Main components
//   - Service: a shared connection that becomes ready once. Readiness is a
//     one-shot future; subscribers arriving after resolution observe the cached
//     signal, so there is no window between checking readiness and subscribing.
//   - Connector: a Service that dials its backend with Fibonacci backoff and
//     resolves readiness on the first successful dial.
//   - Model: binds one named collection when its Service is ready. The state
//     machine is Disconnected -> Connected and never goes back. Collection
//     returns ErrNotConnected until the binding exists.
//   - BulkImport: partitions operations into chunks and drives them through a
//     producer and a consumer connected by a channel holding one chunk. The
//     consumer issues one BulkWrite at a time; the first failed chunk stops the
//     pipeline and is returned as a *WriteError. Earlier chunks stay committed
//     and nothing is retried.
package storage
