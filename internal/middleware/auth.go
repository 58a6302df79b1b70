package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Pentico/subscription-service/internal/contextkeys"
	"github.com/Pentico/subscription-service/internal/handler"
)

// openRoute marks a method/path-prefix pair that skips authentication.
type openRoute struct {
	method string // empty matches any method
	prefix string
}

// openRoutes mirrors the public surface: plan reads, user signup, the
// inbound provider webhook, and the health check.
var openRoutes = []openRoute{
	{method: http.MethodGet, prefix: "/api/plans"},
	{method: http.MethodPost, prefix: "/api/users"},
	{method: http.MethodPost, prefix: "/api/subscriptions/renew"},
	{method: "", prefix: "/health"},
}

func isOpenRoute(r *http.Request) bool {
	for _, route := range openRoutes {
		if route.method != "" && route.method != r.Method {
			continue
		}
		if strings.HasPrefix(r.URL.Path, route.prefix) {
			return true
		}
	}
	return false
}

// Auth returns the JWT gate middleware: every route outside the allow-list
// requires a valid bearer token. The token's subject and role are stored in
// the request context.
func Auth(jwtSecret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOpenRoute(r) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": "no token provided"})
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid authorization header"})
				return
			}

			claims, err := verifyToken(parts[1], jwtSecret)
			if err != nil {
				handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
				return
			}

			ctx := r.Context()
			if sub, ok := claims["sub"].(string); ok {
				ctx = context.WithValue(ctx, contextkeys.UserReference, sub)
			}
			if role, ok := claims["role"].(string); ok {
				ctx = context.WithValue(ctx, contextkeys.UserRole, role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func verifyToken(tokenStr, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
