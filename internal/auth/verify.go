package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/pkg/e"
)

// Reader turns a bearer token into a session. ReadSession is the client
// side Reader; Verifier builds one for servers holding state of many users.
type Reader func(token string) (*models.Session, error)

// Verifier returns a Reader that only accepts tokens signed with secret using
// HMAC, and rejects expired ones. With an empty secret every non-empty token
// is rejected.
func Verifier(secret []byte) Reader {
	return func(token string) (*models.Session, error) {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, nil
		}
		if len(secret) == 0 {
			return nil, fmt.Errorf("%w: no verification key configured", e.ErrDecodeFailure)
		}

		claims := &Claims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", e.ErrDecodeFailure, err)
		}
		if !parsed.Valid || claims.UserID == "" {
			return nil, fmt.Errorf("%w: missing id_user claim", e.ErrDecodeFailure)
		}

		return &models.Session{
			UserID: claims.UserID,
			Role:   claims.Role,
		}, nil
	}
}

// Fingerprint identifies a token without storing it. Server-side state is
// keyed by it, so only the holder of the exact token reaches that state.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:16])
}
