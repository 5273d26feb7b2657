package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/pkg/e"
)

// Claims are the storefront claims carried by the bearer token.
type Claims struct {
	UserID string `json:"id_user"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ReadSession decodes identity and role from a stored token.
//
// The token is opaque to the client: its signature is checked by the remote
// API, not here. An empty token yields a nil session and no error. Anything
// that is not a decodable token with a user ID yields e.ErrDecodeFailure.
func ReadSession(token string) (*models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrDecodeFailure, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing id_user claim", e.ErrDecodeFailure)
	}

	return &models.Session{
		UserID: claims.UserID,
		Role:   claims.Role,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
// It returns "" when the header is missing or not a bearer credential.
func BearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
