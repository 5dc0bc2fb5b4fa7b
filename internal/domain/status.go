package domain

import "github.com/google/uuid"

// StatusInput carries the facts the status resolution depends on.
type StatusInput struct {
	CanonicalID      *uuid.UUID
	NativeID         *string
	PresentInRuntime bool
	Deleted          bool
	Ignored          bool
}

// ResolveStatus computes the lifecycle status of a mapping from flags and
// linkage facts. Pure function, no I/O. Precedence, highest first:
//
//	DELETED > IGNORED > MISSING > UNTRACKED/LINKED
//
// Combinations not matched by any rule are inconsistent; the resolver
// falls back to UNTRACKED rather than ever guessing LINKED. Callers can
// distinguish that case with StatusInput.Consistent.
func ResolveStatus(in StatusInput) MappingStatus {
	switch {
	case in.Deleted:
		return StatusDeleted
	case in.Ignored:
		return StatusIgnored
	case !in.PresentInRuntime && in.NativeID != nil:
		return StatusMissing
	case in.CanonicalID == nil && in.PresentInRuntime:
		return StatusUntracked
	case in.CanonicalID != nil && in.PresentInRuntime:
		return StatusLinked
	default:
		return StatusUntracked
	}
}

// Consistent reports whether the input matches one of the documented
// resolution rules. False means ResolveStatus fell through to the safe
// UNTRACKED default and the caller should log it.
func (in StatusInput) Consistent() bool {
	if in.Deleted || in.Ignored || in.PresentInRuntime {
		return true
	}
	return in.NativeID != nil
}
