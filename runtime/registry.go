package runtime

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"context"
	"log/slog"
	"sync"
)

// Registry tracks the live connections of every user.
// A user may hold several connections (one per device). The registry owns
// the user's presence flag: it flips online on the first registration and
// offline when the last connection leaves, never in between.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]map[string]contract.Connection // map user -> connection id -> connection
	userLocks   *KeyedMutex
	presence    contract.IPresenceWriter
	log         *slog.Logger
	// live counts registered connections whose Unregister has not completed yet,
	// presence write included
	live    int
	settled chan struct{}
}

func NewRegistry(presence contract.IPresenceWriter, log *slog.Logger) *Registry {
	return &Registry{
		connections: make(map[string]map[string]contract.Connection),
		userLocks:   NewKeyedMutex(),
		presence:    presence,
		log:         log,
		settled:     make(chan struct{}, 1),
	}
}

// Register adds conn to the set of its user and returns the resulting count.
// Register and Unregister are linearized per user, and the presence write of
// an edge happens inside that critical section so that two flips of the same
// user can never reach the store out of order.
// A failed presence write is logged, the connection stays registered.
func (r *Registry) Register(ctx context.Context, conn contract.Connection) int {
	userID := conn.UserID()
	unlock := r.userLocks.Lock(userID)
	defer unlock()

	r.mu.Lock()
	set, ok := r.connections[userID]
	if !ok {
		set = make(map[string]contract.Connection)
		r.connections[userID] = set
	}
	_, known := set[conn.ID()]
	set[conn.ID()] = conn
	count := len(set)
	if !known {
		r.live++
	}
	r.mu.Unlock()

	if !known {
		observability.LiveConnections.Inc()
	}
	if count == 1 && !known {
		observability.OnlineUsers.Inc()
		r.setPresence(ctx, userID, true)
	}
	return count
}

// Unregister removes conn and returns how many connections its user still holds.
// Unregistering a connection that is not registered changes nothing.
func (r *Registry) Unregister(ctx context.Context, conn contract.Connection) int {
	userID := conn.UserID()
	unlock := r.userLocks.Lock(userID)
	defer unlock()

	r.mu.Lock()
	set := r.connections[userID]
	_, known := set[conn.ID()]
	if known {
		delete(set, conn.ID())
	}
	remaining := len(set)
	if remaining == 0 {
		delete(r.connections, userID)
	}
	r.mu.Unlock()

	if !known {
		r.log.Debug("Unregister of unknown connection ignored", "user_id", userID, "connection_id", conn.ID())
		return remaining
	}
	observability.LiveConnections.Dec()
	if remaining == 0 {
		observability.OnlineUsers.Dec()
		r.setPresence(ctx, userID, false)
	}

	r.mu.Lock()
	r.live--
	r.mu.Unlock()
	select {
	case r.settled <- struct{}{}:
	default:
	}
	return remaining
}

// ConnectionsOf returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsOf(userID string) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.connections[userID]
	if len(set) == 0 {
		return nil
	}
	snapshot := make([]contract.Connection, 0, len(set))
	for _, conn := range set {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections[userID]) > 0
}

// Close closes every registered connection, then waits until each one went
// through Unregister and its offline presence write, or until ctx is done.
// Sessions unregister themselves through their own disconnect path.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.RLock()
	var all []contract.Connection
	for _, set := range r.connections {
		for _, conn := range set {
			all = append(all, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range all {
		if err := conn.Close(); err != nil {
			r.log.Debug("Closing connection failed", "connection_id", conn.ID(), "error", err)
		}
	}

	for {
		r.mu.RLock()
		live := r.live
		r.mu.RUnlock()
		if live == 0 {
			return nil
		}
		select {
		case <-r.settled:
		case <-ctx.Done():
			r.log.Warn("Connections still open after close", "count", live, "error", ctx.Err())
			return ctx.Err()
		}
	}
}

func (r *Registry) setPresence(ctx context.Context, userID string, online bool) {
	if err := r.presence.SetOnline(ctx, userID, online); err != nil {
		r.log.Error("Failed to update presence", "user_id", userID, "online", online, "error", err)
		return
	}
	r.log.Debug("Presence changed", "user_id", userID, "online", online)
}
