// SPDX-License-Identifier: MPL-2.0

// Package hooks implements the hook chain engine shared by the resolve, load and
// evaluate stages.
//
// A [Chain] is an owned value: registrations are appended with [Chain.Register] and
// removed through the returned [Handle]. Every run snapshots the registrations that
// exist when it starts, so registering or deregistering while a run is in flight only
// affects later runs.
//
// Each hook receives a next continuation. It may transform the arguments before
// calling next, post-process next's result, or return its own result without calling
// next, in which case the result must be marked ShortCircuit. A hook that does
// neither fails the run with an InvalidHookContract error naming the registration.
package hooks
