package repositories

import (
	"chat-relay/domain"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory reads users, channels and memberships from the PostgreSQL schema
// owned by the account service. The only write is the presence flag.
type Directory struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewDirectory opens a connection pool and checks it answers.
func NewDirectory(ctx context.Context, databaseURL string, log *slog.Logger) (*Directory, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Directory{pool: pool, log: log}, nil
}

func (d *Directory) Close() {
	d.pool.Close()
}

func (d *Directory) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// GetUser returns nil when no such user exists.
func (d *Directory) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user := &domain.User{}
	err := d.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, user_name, avatar_url, is_verified, is_online
		FROM users WHERE id = $1
	`, userID).Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.UserName,
		&user.AvatarURL,
		&user.IsVerified,
		&user.IsOnline,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return user, nil
}

// GetProfiles resolves many senders in one round trip. Unknown ids are absent from the map.
func (d *Directory) GetProfiles(ctx context.Context, userIDs []string) (map[string]domain.Profile, error) {
	profiles := make(map[string]domain.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}

	rows, err := d.pool.Query(ctx, `
		SELECT id, first_name, last_name, user_name, avatar_url
		FROM users WHERE id = ANY($1)
	`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("get profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.UserName, &p.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles[p.ID] = p
	}
	return profiles, rows.Err()
}

func (d *Directory) SetOnline(ctx context.Context, userID string, online bool) error {
	tag, err := d.pool.Exec(ctx, `UPDATE users SET is_online = $2 WHERE id = $1`, userID, online)
	if err != nil {
		return fmt.Errorf("set presence of %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		d.log.Warn("Presence update matched no user", "user_id", userID, "online", online)
	}
	return nil
}
