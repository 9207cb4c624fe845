package runtime

import (
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
)

// RetentionEnforcer keeps each user and each channel under its message cap
// by deleting the oldest rows by (createdAt, id).
//
// Enforcement is serialized per scope: two passes over the same user (or the
// same channel) never interleave their count, select and delete steps, while
// unrelated scopes run in parallel. Count and selection come from one
// snapshot and a pass deletes exactly the ids it selected, so a channel pass
// racing a user pass over the same rows cannot evict past its cap.
type RetentionEnforcer struct {
	repository repositories.IMessageRepository
	log        *slog.Logger
	scopeLocks *KeyedMutex
	userCap    int
	channelCap int
}

func NewRetentionEnforcer(repository repositories.IMessageRepository, log *slog.Logger, userCap, channelCap int) *RetentionEnforcer {
	return &RetentionEnforcer{
		repository: repository,
		log:        log,
		scopeLocks: NewKeyedMutex(),
		userCap:    userCap,
		channelCap: channelCap,
	}
}

func (r *RetentionEnforcer) EnforceUser(ctx context.Context, userID string) (int, error) {
	return r.enforce(ctx, domain.UserScope(userID), r.userCap)
}

func (r *RetentionEnforcer) EnforceChannel(ctx context.Context, channelID string) (int, error) {
	return r.enforce(ctx, domain.ChannelScope(channelID), r.channelCap)
}

// Enforce runs both passes touched by one append. Failures are logged and
// counted, never returned: retention must not fail a send.
func (r *RetentionEnforcer) Enforce(ctx context.Context, job domain.RetentionJob) {
	if _, err := r.EnforceUser(ctx, job.UserID); err != nil {
		observability.RetentionFailures.WithLabelValues(string(domain.ScopeUser)).Inc()
		r.log.Error("User retention failed", "user_id", job.UserID, "error", err)
	}
	if _, err := r.EnforceChannel(ctx, job.ChannelID); err != nil {
		observability.RetentionFailures.WithLabelValues(string(domain.ScopeChannel)).Inc()
		r.log.Error("Channel retention failed", "channel_id", job.ChannelID, "error", err)
	}
}

// enforce returns how many rows were deleted. A cap <= 0 disables the scope.
func (r *RetentionEnforcer) enforce(ctx context.Context, scope domain.Scope, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	unlock := r.scopeLocks.Lock(scope.String())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count, oldest, err := r.repository.Overflow(scope, limit)
	if err != nil {
		return 0, fmt.Errorf("select overflow of %s: %w", scope, err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	deleted, err := r.repository.DeleteByIDs(oldest)
	if err != nil {
		return 0, fmt.Errorf("delete %d rows of %s: %w", len(oldest), scope, err)
	}

	observability.RetentionEvictions.WithLabelValues(string(scope.Kind)).Add(float64(deleted))
	r.log.Debug("Retention applied", "scope", scope.String(), "count", count, "cap", limit, "deleted", deleted)
	return deleted, nil
}
