package auth

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
)

// Verifier turns a bearer token into a verified user.
// It checks the signature first, then asks the user directory whether
// the account exists and is verified.
type Verifier struct {
	log    *slog.Logger
	secret []byte
	users  contract.IUserDirectory
}

func NewVerifier(log *slog.Logger, secret []byte, users contract.IUserDirectory) *Verifier {
	return &Verifier{log: log, secret: secret, users: users}
}

func (v *Verifier) Verify(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, errors.ErrNotAuthenticated
	}

	claims, err := ValidateToken(v.secret, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}

	user, err := v.users.GetUser(ctx, claims.UserID)
	if err != nil {
		// Directory outages surface as an invalid token
		v.log.Error("User lookup failed during authentication", "user_id", claims.UserID, "error", err)
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	if user == nil || !user.IsVerified {
		return nil, errors.ErrNotVerified
	}
	return user, nil
}
