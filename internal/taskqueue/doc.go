// SPDX-License-Identifier: MPL-2.0

// Package taskqueue provides the single-threaded cooperative scheduler module
// evaluation runs on.
//
// A [Loop] is a FIFO of tasks with at most one driver at a time. A [Promise] settles
// once and runs its callbacks as loop tasks. A [Coroutine] runs a body on its own
// goroutine with strict hand-off, so the body and whoever resumed it never run at the
// same time; [Yielder.Await] suspends the body until a promise settles and the loop
// resumes it.
//
// There is no cancellation of in-flight bodies. A context passed to [Loop.RunUntil]
// only bounds how long the caller waits.
package taskqueue
