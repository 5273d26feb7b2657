package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/storefront/internal/auth"
	"github.com/mmynk/storefront/internal/guard"
	"github.com/mmynk/storefront/internal/storage"
	"github.com/mmynk/storefront/internal/storefront"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// EntryKey is the context key for the session of the request.
	EntryKey contextKey = "entry"
	// TokenKey is the context key for the raw bearer token.
	TokenKey contextKey = "token"
)

// GetEntry extracts the session from the context.
// Returns nil if not found.
func GetEntry(ctx context.Context) *storefront.Entry {
	entry, _ := ctx.Value(EntryKey).(*storefront.Entry)
	return entry
}

// GetToken extracts the bearer token from the context.
func GetToken(ctx context.Context) string {
	token, _ := ctx.Value(TokenKey).(string)
	return token
}

// GetUserID returns the user of the request, empty if anonymous.
func GetUserID(ctx context.Context) string {
	entry := GetEntry(ctx)
	if entry == nil || entry.Session() == nil {
		return ""
	}
	return entry.Session().UserID
}

// SessionHeader is set to "invalid" on responses to requests whose bearer
// token was rejected. Such requests are served as anonymous.
const SessionHeader = "Storefront-Session"

// Sessions returns an interceptor that attaches the session of the bearer
// token to the context. Requests without a usable token get the anonymous
// session; rejecting them is up to the handler.
func Sessions(reg *storefront.Registry) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			token := auth.BearerToken(req.Header().Get("Authorization"))
			entry, decodeErr := reg.Get(ctx, token)
			ctx = context.WithValue(ctx, TokenKey, token)
			ctx = context.WithValue(ctx, EntryKey, entry)

			resp, err := next(ctx, req)

			if decodeErr != nil {
				slog.Warn("Session token rejected", "procedure", req.Spec().Procedure, "error", decodeErr)
				if resp != nil {
					resp.Header().Set(SessionHeader, "invalid")
				}
				var connectErr *connect.Error
				if errors.As(err, &connectErr) {
					connectErr.Meta().Set(SessionHeader, "invalid")
				}
			}
			return resp, err
		}
	}
}

// AdminOnly returns an interceptor rejecting procedures under prefix with
// PermissionDenied unless read accepts the bearer token as an admin session.
// read should verify signatures; the claims of the session context are not
// trusted for this. It must run after Sessions.
func AdminOnly(prefix string, read auth.Reader) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if !strings.HasPrefix(req.Spec().Procedure, prefix) {
				return next(ctx, req)
			}
			session, err := read(GetToken(ctx))
			if err != nil || !guard.Decide(session).Allow {
				return nil, connect.NewError(connect.CodePermissionDenied,
					fmt.Errorf("%s requires the admin role", req.Spec().Procedure))
			}
			return next(ctx, req)
		}
	}
}

// RequireAdmin guards page routes. The token comes from the Authorization
// header or, for plain browser navigation, the "token" cookie, and is
// decoded with read. Anything but an admin session is redirected to the
// unauthorized page.
func RequireAdmin(read auth.Reader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := read(requestToken(r))
			if err != nil {
				session = nil
			}
			decision := guard.Decide(session)
			if !decision.Allow {
				http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestToken(r *http.Request) string {
	if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if c, err := r.Cookie(storage.KeyToken); err == nil {
		return c.Value
	}
	return ""
}
