package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher delivers one event to every live connection of a channel's members.
//
// Recipients come from a single membership snapshot taken when Dispatch
// starts: a member removed afterwards still receives this event, a member
// added afterwards does not.
//
// Delivery is best-effort per connection. Each push runs concurrently with
// its own timeout, and a failing connection never prevents the others from
// being served. Dispatch returns once every push has finished, so
// consecutive dispatches from the same caller reach a connection in order.
type Dispatcher struct {
	log             *slog.Logger
	membership      contract.IMembershipOracle
	registry        contract.IRegistry
	deliveryTimeout time.Duration
}

type DeliveryReport struct {
	Members   int
	Delivered int
	Failed    int
}

func NewDispatcher(log *slog.Logger, membership contract.IMembershipOracle, registry contract.IRegistry, deliveryTimeout time.Duration) *Dispatcher {
	return &Dispatcher{log: log, membership: membership, registry: registry, deliveryTimeout: deliveryTimeout}
}

// Dispatch fails only when the member snapshot cannot be taken.
func (d *Dispatcher) Dispatch(ctx context.Context, channelID string, e event.Event) (DeliveryReport, error) {
	start := time.Now()
	members, err := d.membership.MemberIDs(ctx, channelID)
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("member snapshot of %s: %w", channelID, err)
	}

	var wg sync.WaitGroup
	var delivered, failed atomic.Int64
	for _, memberID := range members {
		for _, conn := range d.registry.ConnectionsOf(memberID) {
			wg.Add(1)
			go func(conn contract.Connection) {
				defer wg.Done()
				pushCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
				defer cancel()
				if err := conn.Push(pushCtx, e); err != nil {
					failed.Add(1)
					observability.Deliveries.WithLabelValues("failed").Inc()
					d.log.Warn("Push failed",
						"event", e.Name, "channel_id", channelID,
						"user_id", conn.UserID(), "connection_id", conn.ID(), "error", err)
					return
				}
				delivered.Add(1)
				observability.Deliveries.WithLabelValues("ok").Inc()
			}(conn)
		}
	}
	wg.Wait()

	observability.FanoutDuration.Observe(time.Since(start).Seconds())
	report := DeliveryReport{Members: len(members), Delivered: int(delivered.Load()), Failed: int(failed.Load())}
	d.log.Debug("Fan-out done", "event", e.Name, "channel_id", channelID,
		"members", report.Members, "delivered", report.Delivered, "failed", report.Failed)
	return report, nil
}
