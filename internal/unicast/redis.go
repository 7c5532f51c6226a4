package unicast

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes signed commands to a per-facility Redis pub/sub
// channel. It stands in for the real WebSocket gateway link (spec.md §1
// treats that link as an external collaborator, specified only at its
// interface) so this service has something concrete to unicast through —
// grounded on the teacher's cascade Subscriber, which consumes the same
// client in the other direction.
type RedisSink struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisSink creates a RedisSink. Channels are named "<prefix><facilityID>".
func NewRedisSink(rdb *redis.Client, prefix string) *RedisSink {
	return &RedisSink{rdb: rdb, prefix: prefix}
}

// UnicastToFacility publishes signedCommand to the facility's channel.
// Delivery is best-effort: a Redis publish with no subscribers still
// succeeds, matching the "best-effort, non-transactional" contract in
// spec.md §6.
func (s *RedisSink) UnicastToFacility(ctx context.Context, facilityID string, signedCommand string) error {
	channel := s.prefix + facilityID
	if err := s.rdb.Publish(ctx, channel, signedCommand).Err(); err != nil {
		return fmt.Errorf("publishing to facility channel %s: %w", channel, err)
	}
	return nil
}
