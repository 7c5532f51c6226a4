// Package unicast declares the capability interface for the opaque
// cloud-to-gateway delivery sink (spec.md §6's "Cloud-to-gateway sink"),
// grounded on the teacher's messaging Provider/Registry abstraction
// (pkg/messaging).
package unicast

import "context"

// Sink delivers a signed command to every gateway serving a facility.
// Delivery is best-effort, non-transactional, and unordered across
// facilities — callers must not infer anything from a nil error beyond
// "accepted for delivery".
type Sink interface {
	UnicastToFacility(ctx context.Context, facilityID string, signedCommand string) error
}
