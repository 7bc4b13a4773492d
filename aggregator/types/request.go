package types

import (
	"fmt"
)

// RecursiveRequest asks for a proof over the claims in [Start, End) at the
// tree position given by Params. It is never mutated once built.
type RecursiveRequest struct {
	Start   uint       `json:"start"`
	End     uint       `json:"end"`
	Root    string     `json:"root"`
	GrantID string     `json:"grant_id"`
	Claims  []Claim    `json:"claims"`
	Params  NodeParams `json:"params"`
}

// Validate checks the shape invariants of the request
func (r RecursiveRequest) Validate() error {
	if r.End <= r.Start {
		return fmt.Errorf("%w: end %d must be greater than start %d", ErrInvalidInput, r.End, r.Start)
	}
	if r.Params.Depth < r.Params.InitialDepth {
		return fmt.Errorf("%w: depth %d is lower than initial depth %d",
			ErrInvalidInput, r.Params.Depth, r.Params.InitialDepth)
	}
	if r.Params.Depth >= maxDepth {
		return fmt.Errorf("%w: depth %d is too large", ErrInvalidInput, r.Params.Depth)
	}
	size := r.End - r.Start
	if size > 1<<r.Params.Depth {
		return fmt.Errorf("%w: range of %d claims does not fit depth %d", ErrInvalidInput, size, r.Params.Depth)
	}
	if uint(len(r.Claims)) != size {
		return fmt.Errorf("%w: got %d claims for a range of %d", ErrInvalidInput, len(r.Claims), size)
	}

	return nil
}

// maxDepth bounds depth so that 1<<depth never overflows
const maxDepth = 63

// Dependencies returns the child requests needed to prove r. Leaf-depth
// requests have none. Otherwise [Start, End) is split into consecutive chunks
// of 2^child.Depth claims, the last one possibly shorter.
func (r RecursiveRequest) Dependencies() []RecursiveRequest {
	if r.Params.IsLeafDepth() {
		return nil
	}
	child, ok := r.Params.Child()
	if !ok {
		return nil
	}

	chunk := uint(1) << child.Depth
	deps := make([]RecursiveRequest, 0, (r.End-r.Start+chunk-1)/chunk)
	for start := r.Start; start < r.End; start += chunk {
		end := min(start+chunk, r.End)
		lo, hi := start-r.Start, end-r.Start
		deps = append(deps, RecursiveRequest{
			Start:   start,
			End:     end,
			Root:    r.Root,
			GrantID: r.GrantID,
			Claims:  r.Claims[lo:hi:hi],
			Params:  child,
		})
	}

	return deps
}

// Size returns the number of claims covered by the request
func (r RecursiveRequest) Size() uint {
	return r.End - r.Start
}
