package alerts

import "fmt"

// Resolver maps an owner's external account id to the routing identifier a
// Sink delivers to. The messaging transport that owns real routing
// identifiers (chat-bot collaborator) is out of scope (spec.md §1); this is
// the thin seam it plugs into.
type Resolver interface {
	Resolve(ownerID int64) (string, error)
}

// IdentityResolver routes directly on the owner id. Suitable for sinks
// (LogSink, a development webhook) that don't need a separately issued
// routing identifier.
type IdentityResolver struct{}

func (IdentityResolver) Resolve(ownerID int64) (string, error) {
	return fmt.Sprintf("owner:%d", ownerID), nil
}
