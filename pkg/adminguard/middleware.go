package adminguard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
)

type contextKey string

const contextKeyClaims contextKey = "pledge-admin-claims"

// ErrorWriter reports an authentication failure to the client.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Authenticate verifies the admin token on r. The body is read (up to
// MaxBodySize) and restored for downstream handlers.
func (g *Guard) Authenticate(r *http.Request) (*Claims, error) {
	token := ExtractToken(r)
	if token == "" {
		return nil, ErrMissingHeader
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, g.config.MaxBodySize+1))
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > g.config.MaxBodySize {
			return nil, ErrBodyTooLarge
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	return g.VerifyInbound(token, body)
}

// ExtractToken returns the admin token from the X-Pledge-Admin header, falling
// back to an Authorization bearer token.
func ExtractToken(r *http.Request) string {
	if token := r.Header.Get(HeaderName); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// Middleware rejects requests without a valid admin token and stores the
// verified claims in the request context. A nil onError replies with a plain
// 401 (413 for oversized bodies).
func Middleware(guard *Guard, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = defaultErrorWriter
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := guard.Authenticate(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func defaultErrorWriter(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, ErrBodyTooLarge) {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, "admin authentication failed: "+err.Error(), http.StatusUnauthorized)
}

// WithClaims returns a context carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims, claims)
}

// ClaimsFromContext returns the verified claims, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKeyClaims).(*Claims)
	return claims
}
