package streams

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// GroupStatus is a point-in-time view of this consumer's group on a
// stream: how many entries are pending, how far behind the group is and
// how stale the oldest pending entry has become. Lag is -1 when the group
// does not exist on the stream.
type GroupStatus struct {
	Pending    int64         `json:"pending"`
	Lag        int64         `json:"lag"`
	Consumers  int64         `json:"consumers"`
	OldestIdle time.Duration `json:"oldest_idle"`
}

// GroupStatus inspects the extraction intake stream for this consumer's
// group. It backs the ops queue endpoint; a worker that stops draining
// shows up here as growing pending count and oldest-idle age.
func (c *Consumer) GroupStatus(ctx context.Context, stream string) (GroupStatus, error) {
	if stream == "" {
		return GroupStatus{}, fmt.Errorf("stream name is required")
	}
	if c.group == "" {
		return GroupStatus{}, fmt.Errorf("consumer group must be configured")
	}

	groups, err := c.client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return GroupStatus{}, fmt.Errorf("xinfo groups: %w", err)
	}

	status := GroupStatus{Lag: -1}
	for _, g := range groups {
		if g.Name != c.group {
			continue
		}
		status.Pending = g.Pending
		status.Lag = g.Lag
		status.Consumers = int64(g.Consumers)
		break
	}
	if status.Pending == 0 {
		return status, nil
	}

	oldest, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  1,
	}).Result()
	if err != nil && err != redis.Nil {
		return GroupStatus{}, fmt.Errorf("xpending: %w", err)
	}
	if len(oldest) > 0 {
		status.OldestIdle = oldest[0].Idle
	}
	return status, nil
}
