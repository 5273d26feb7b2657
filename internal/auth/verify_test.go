package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmynk/storefront/pkg/e"
)

func unsignedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}
	return token
}

func TestVerifier(t *testing.T) {
	verify := Verifier([]byte("test-secret"))

	tests := []struct {
		name    string
		token   string
		wantErr bool
		wantID  string
	}{
		{
			name:   "empty token",
			token:  "",
			wantID: "",
		},
		{
			name:   "signed with the key",
			token:  signToken(t, jwt.MapClaims{"id_user": "u-1", "role": "admin"}),
			wantID: "u-1",
		},
		{
			name:    "alg none",
			token:   unsignedToken(t, jwt.MapClaims{"id_user": "victim", "role": "admin"}),
			wantErr: true,
		},
		{
			name: "other key",
			token: func() string {
				s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id_user": "u-2"}).SignedString([]byte("nope"))
				return s
			}(),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   signToken(t, jwt.MapClaims{"id_user": "u-3", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantErr: true,
		},
		{
			name:    "missing user",
			token:   signToken(t, jwt.MapClaims{"role": "admin"}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := verify(tt.token)
			if tt.wantErr {
				if !errors.Is(err, e.ErrDecodeFailure) {
					t.Fatalf("expected ErrDecodeFailure, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantID == "" {
				if session != nil {
					t.Errorf("expected no session, got %+v", session)
				}
				return
			}
			if session == nil || session.UserID != tt.wantID {
				t.Errorf("expected user %q, got %+v", tt.wantID, session)
			}
		})
	}
}

func TestVerifier_NoKey(t *testing.T) {
	_, err := Verifier(nil)(signToken(t, jwt.MapClaims{"id_user": "u-1", "role": "admin"}))
	if !errors.Is(err, e.ErrDecodeFailure) {
		t.Errorf("expected ErrDecodeFailure without a key, got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	a := signToken(t, jwt.MapClaims{"id_user": "victim"})
	b := unsignedToken(t, jwt.MapClaims{"id_user": "victim"})

	if Fingerprint(a) == Fingerprint(b) {
		t.Error("tokens with the same user must not share a fingerprint")
	}
	if Fingerprint(a) != Fingerprint(" "+a+" ") {
		t.Error("fingerprint must ignore surrounding space")
	}
	if len(Fingerprint(a)) != 32 {
		t.Errorf("unexpected fingerprint length %d", len(Fingerprint(a)))
	}
}
