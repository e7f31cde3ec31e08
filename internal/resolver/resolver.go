package resolver

import "context"

// Resolver computes the ordered set of components a target needs at a given
// version.
//
// Implementations must be safe for concurrent use and must not mutate the
// catalog they read from.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (Plan, error)
}
