package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"fire/command/internal/config"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for storing user claims.
	UserContextKey contextKey = "user"
)

// UserClaims represents the JWT claims from Keycloak.
type UserClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// AuthMiddleware validates Keycloak access tokens and requires a realm role.
type AuthMiddleware struct {
	keyFunc      jwt.Keyfunc
	cancelFn     context.CancelFunc
	validIssuers []string
	role         string
	log          zerolog.Logger
}

// NewAuthMiddleware creates a new authentication middleware with JWKS from Keycloak.
func NewAuthMiddleware(ctx context.Context, cfg config.KeycloakConfig, log zerolog.Logger) (*AuthMiddleware, error) {
	jwksURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.URL, cfg.Realm)

	// The JWKS refresh goroutine lives until Close.
	jwksCtx, cancelFn := context.WithCancel(ctx)

	jwks, err := keyfunc.NewDefaultCtx(jwksCtx, []string{jwksURL})
	if err != nil {
		cancelFn()
		return nil, fmt.Errorf("failed to create JWKS from %s: %w", jwksURL, err)
	}

	// Tokens are issued under the internal or the public Keycloak URL.
	validIssuers := []string{
		fmt.Sprintf("%s/realms/%s", cfg.URL, cfg.Realm),
		fmt.Sprintf("%s/realms/%s", cfg.PublicURL, cfg.Realm),
	}

	log.Info().
		Str("jwks_url", jwksURL).
		Strs("valid_issuers", validIssuers).
		Str("role", cfg.Role).
		Msg("JWT authentication middleware initialized")

	a := newAuth(jwks.Keyfunc, validIssuers, cfg.Role, log)
	a.cancelFn = cancelFn
	return a, nil
}

func newAuth(keyFunc jwt.Keyfunc, issuers []string, role string, log zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		keyFunc:      keyFunc,
		validIssuers: issuers,
		role:         role,
		log:          log,
	}
}

// Close releases resources used by the auth middleware.
func (a *AuthMiddleware) Close() {
	if a.cancelFn != nil {
		a.cancelFn()
	}
}

// Middleware returns an HTTP middleware that validates JWT tokens.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.authenticate(r)
		if err != nil {
			a.log.Debug().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if a.role != "" && !slices.Contains(claims.RealmAccess.Roles, a.role) {
			a.log.Debug().
				Str("username", claims.PreferredUsername).
				Strs("roles", claims.RealmAccess.Roles).
				Str("required", a.role).
				Msg("user lacks required role")
			http.Error(w, "Forbidden: missing "+a.role+" role", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthMiddleware) authenticate(r *http.Request) (*UserClaims, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(raw, &UserClaims{}, a.keyFunc,
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok {
		return nil, errors.New("failed to extract claims")
	}
	if !slices.Contains(a.validIssuers, claims.Issuer) {
		return nil, fmt.Errorf("invalid issuer: %s", claims.Issuer)
	}
	return claims, nil
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// a websocket handshake, so the access_token query parameter is accepted too.
func bearerToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errors.New("invalid Authorization header format")
		}
		return parts[1], nil
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, nil
	}
	return "", errors.New("missing bearer token")
}

// GetUserFromContext retrieves the user claims from the request context.
func GetUserFromContext(ctx context.Context) (*UserClaims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*UserClaims)
	return claims, ok
}

// actor names the operator behind a request for logs.
func actor(r *http.Request) string {
	if claims, ok := GetUserFromContext(r.Context()); ok && claims.PreferredUsername != "" {
		return claims.PreferredUsername
	}
	return "anonymous"
}
