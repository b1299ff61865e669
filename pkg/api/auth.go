package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/log"
	"github.com/dockfleet/dockfleet/pkg/storage"
	"github.com/dockfleet/dockfleet/pkg/types"
)

type contextKey string

const userContextKey contextKey = "user"

// authenticator issues and verifies bearer tokens. The role embedded in
// a token is informational only; the middleware reloads the user record
// so revocations and role changes take effect within one request.
type authenticator struct {
	secret   []byte
	tokenTTL time.Duration
	store    storage.Store
}

func newAuthenticator(secret []byte, tokenTTL time.Duration, store storage.Store) *authenticator {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &authenticator{secret: secret, tokenTTL: tokenTTL, store: store}
}

type claims struct {
	Username string     `json:"username"`
	Role     types.Role `json:"role"`
	jwt.RegisteredClaims
}

// issue signs a token for the user
func (a *authenticator) issue(user *types.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	})
	return token.SignedString(a.secret)
}

// verify parses a token and loads the current user record
func (a *authenticator) verify(tokenString string) (*types.User, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errdefs.New(errdefs.KindForbidden, "unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errdefs.Wrap(errdefs.KindForbidden, "invalid token", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, errdefs.New(errdefs.KindForbidden, "invalid token claims")
	}
	user, err := a.store.GetUser(c.Subject)
	if err != nil {
		return nil, errdefs.New(errdefs.KindForbidden, "user no longer exists")
	}
	return user, nil
}

// middleware rejects requests lacking a valid bearer token. Websocket
// callers may pass the token as a query parameter since browsers cannot
// set headers on websocket upgrades.
func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			writeError(w, errdefs.New(errdefs.KindForbidden, "missing bearer token"))
			return
		}
		user, err := a.verify(tokenString)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// userFrom returns the authenticated user set by the middleware
func userFrom(r *http.Request) *types.User {
	user, _ := r.Context().Value(userContextKey).(*types.User)
	return user
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string     `json:"token"`
	UserID   string     `json:"user_id"`
	Username string     `json:"username"`
	Role     types.Role `json:"role"`
}

// handleLogin exchanges credentials for a bearer token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := s.store.GetUserByUsername(req.Username)
	if err != nil {
		// Deliberately indistinguishable from a bad password
		writeError(w, errdefs.New(errdefs.KindForbidden, "invalid credentials"))
		return
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		log.WithComponent("api").Warn().
			Str("username", req.Username).
			Msg("failed login attempt")
		writeError(w, errdefs.New(errdefs.KindForbidden, "invalid credentials"))
		return
	}

	token, err := s.auth.issue(user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
}
