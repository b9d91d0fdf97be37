package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/taskboard/pkg/auth"
	"github.com/platinummonkey/taskboard/pkg/contextkeys"
	"github.com/platinummonkey/taskboard/pkg/httputil"
	"github.com/platinummonkey/taskboard/pkg/rbac"
)

// Authenticator turns a bearer token into an authenticated context
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.AuthContext, error)
}

// TokenRecorder receives the outcome of each token check
type TokenRecorder interface {
	RecordTokenValidation(result string)
}

// AuthMiddleware provides bearer token authentication
type AuthMiddleware struct {
	authenticator Authenticator
	recorder      TokenRecorder
}

// NewAuthMiddleware creates a new authentication middleware; recorder may be nil
func NewAuthMiddleware(authenticator Authenticator, recorder TokenRecorder) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator, recorder: recorder}
}

// Handler rejects requests without a valid token with 401 and otherwise
// stores the AuthContext in the request context
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			m.record("missing")
			httputil.WriteUnauthorized(w, "missing or malformed authorization header")
			return
		}

		authCtx, err := m.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			m.record("invalid")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		m.record("valid")

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(authCtx.User.ID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) record(result string) {
	if m.recorder != nil {
		m.recorder.RecordTokenValidation(result)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetAuthContext extracts the auth context from the request, or nil
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, _ := contextkeys.Auth(r.Context()).(*auth.AuthContext)
	return authCtx
}

// Subject returns the authorization subject of the request. Anonymous
// requests get an inactive zero subject, which every gate rejects.
func Subject(r *http.Request) rbac.Subject {
	return GetAuthContext(r).Subject()
}

// RequireScope rejects tokens that lack scope with 403
func RequireScope(scope auth.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !authCtx.HasScope(scope) {
				httputil.WriteForbidden(w, "token lacks scope "+string(scope))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
