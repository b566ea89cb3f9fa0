package httputil

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pharmtrace/pharmtrace-backend/pkg/actor"
	"github.com/pharmtrace/pharmtrace-backend/pkg/config"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
)

// Claims represents the bearer token claims issued by the external auth subsystem.
// This service only verifies tokens; it never issues them.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// Auth returns a middleware that validates the Authorization bearer token and
// attaches the acting user to the request context.
func Auth(cfg *config.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				Error(w, errors.Unauthorized("missing authorization header"))
				return
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			if tokenString == header {
				Error(w, errors.Unauthorized("authorization header must be a bearer token"))
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.Unauthorized("unexpected signing method")
				}
				return []byte(cfg.Secret), nil
			}, jwt.WithIssuer(cfg.Issuer))
			if err != nil || !token.Valid {
				Error(w, errors.Unauthorized("invalid or expired token"))
				return
			}

			userID := claims.UserID
			if userID == "" {
				userID = claims.Subject
			}

			ctx := actor.WithActor(r.Context(), &actor.Actor{
				ID:    userID,
				Name:  claims.Name,
				Email: claims.Email,
				Role:  claims.Role,
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
