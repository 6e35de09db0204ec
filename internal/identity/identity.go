package identity

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the local user as encoded in the access token issued by the
// platform's auth service.
type Identity struct {
	UserID   int
	Username string
}

type tokenClaims struct {
	UserID   any    `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// FromToken extracts the local identity from a bearer token. The signature is
// not verified here; the collaborator rejects forged tokens on every call and
// the engine only needs to know who it is acting as.
func FromToken(token string) (Identity, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	userID, err := claimAsInt(claims.UserID)
	if err != nil {
		if claims.Subject != "" {
			if userID, err = claimAsInt(claims.Subject); err == nil {
				return Identity{UserID: userID, Username: claims.Username}, nil
			}
		}
		return Identity{}, fmt.Errorf("token has no usable user id: %w", err)
	}
	return Identity{UserID: userID, Username: claims.Username}, nil
}

func claimAsInt(raw any) (int, error) {
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("non-numeric user id %q", v)
		}
		return n, nil
	case nil:
		return 0, errors.New("user id claim missing")
	default:
		return 0, fmt.Errorf("unsupported user id claim type %T", raw)
	}
}
