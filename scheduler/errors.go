// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"github.com/pkg/errors"
)

// Named error conditions reported by the scheduler. All of them abort the
// scheduling attempt for the whole fusion: no partial schedule is ever handed
// to the emitter. Callers match them with errors.Is and either report upward
// or fall back to a scheduler that does not reason about transposes.
var (
	// ErrNoSchedulableTranspose indicates the fusion has no tensor with two
	// or more non-trivial axes to tile against.
	ErrNoSchedulableTranspose = errors.New("no schedulable transpose: fusion has no rank >= 2 tensor to tile")

	// ErrNoReferenceTensor indicates a layout group has no input or output
	// member from which a concrete schedule can be authored, e.g. an
	// all-broadcast group.
	ErrNoReferenceTensor = errors.New("could not find a reference tensor for layout group")

	// ErrNoValidTiling indicates no tile/thread/vector combination
	// satisfies the divisibility constraints for the given extents.
	ErrNoValidTiling = errors.New("no valid tiling for the given extents")

	// ErrConflictingParallelLabel indicates two propagation passes assigned
	// different parallel labels to the same loop position. This is an
	// internal consistency fault of the scheduling passes, not a property
	// of the input fusion.
	ErrConflictingParallelLabel = errors.New("conflicting parallel labels on the same loop position")

	// ErrInlineDependencyViolation indicates the inliner computed an inline
	// depth that would reorder a read before its producing write, i.e. the
	// block-level barrier of a staged tile is not representable.
	ErrInlineDependencyViolation = errors.New("inlining would violate a data dependency")
)

// schedulerError carries a wrapped sentinel through the internal
// panic-based unwinding; the public entry points catch it and return the
// error value.
type schedulerError struct {
	err error
}

func (e *schedulerError) Error() string { return e.err.Error() }

// throwf aborts scheduling with sentinel wrapped in a contextual message.
func throwf(sentinel error, format string, args ...any) {
	panic(&schedulerError{err: errors.Wrapf(sentinel, format, args...)})
}
