// Package procset spawns and supervises a set of child processes, each
// associated with a caller-supplied key, and lets the caller wait on all or
// part of them through a single blocking primitive.
//
// A ProcessSet admits launches against an optional concurrency ceiling,
// queueing the rest in FIFO order, and WaitAny reports completions one at a
// time as they are observed. A process-wide SignalHandler folds SIGINT and
// SIGTERM delivery into the same rendezvous, so an interactive caller can
// notice Ctrl-C while blocked and propagate a graceful shutdown with
// InterruptAllAndWait.
//
// A ProcessSet assumes a single driving goroutine: its methods are not safe
// for concurrent use. Each child is reaped by a dedicated goroutine owned by
// the set, so callers must never call Wait on a command after handing it to
// Add.
//
// Signal delivery to children relies on kill(2) semantics and is fully
// supported only on Unix-like platforms. On Windows, os.Interrupt cannot be
// sent to a child, so InterruptAll and the shutdown sequence degrade to
// best-effort behaviour.
package procset
