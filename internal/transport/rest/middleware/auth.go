package middleware

import (
	"context"
	"net/http"
	"strings"

	"launchpad/internal/service"
)

type founderKey struct{}

// Founder is the authenticated caller of a request. Token is the raw bearer
// token, forwarded on every backend call made for the request.
type Founder struct {
	ID    string
	Email string
	Token string
}

// WithFounder returns a context carrying f
func WithFounder(ctx context.Context, f Founder) context.Context {
	return context.WithValue(ctx, founderKey{}, f)
}

func FounderFrom(ctx context.Context) (Founder, bool) {
	f, ok := ctx.Value(founderKey{}).(Founder)
	return f, ok
}

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authSvc *service.AuthService
}

func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequireFounder accepts only requests with a valid founder bearer token
func (m *AuthMiddleware) RequireFounder(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w, "missing authorization header")
			return
		}

		claims, err := m.authSvc.ValidateFounderToken(token)
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}

		ctx := WithFounder(r.Context(), Founder{ID: claims.FounderID, Email: claims.Email, Token: token})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="apply"`)
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

// GetFounderID returns the caller's founder id, or "" outside RequireFounder
func GetFounderID(ctx context.Context) string {
	f, _ := FounderFrom(ctx)
	return f.ID
}

func GetEmail(ctx context.Context) string {
	f, _ := FounderFrom(ctx)
	return f.Email
}

func GetToken(ctx context.Context) string {
	f, _ := FounderFrom(ctx)
	return f.Token
}

// BearerToken parses an Authorization header value of the form "Bearer <token>"
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
