package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/deepshield/deepshield-api/databases"
	"github.com/deepshield/deepshield-api/models"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

const issuer = "deepshield-api"

type contextKey string

const actorKey contextKey = "actor"

// Actor is the authenticated caller of a request
type Actor struct {
	ID    string
	Email string
	Role  models.Role
}

// IsAdmin reports whether the token was issued to an administrator
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// WithActor stores a on ctx
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the caller set by Middleware
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

type claims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Auth issues and verifies bearer tokens. Tokens are HS256 JWTs; verified
// tokens are cached by go-guardian until they would expire anyway.
type Auth struct {
	DB     databases.UserDatabase
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time

	authenticator auth.Authenticator
}

// NewAuth sets up the go-guardian authenticator with a cached bearer strategy
func NewAuth(db databases.UserDatabase, secret string, ttl time.Duration) *Auth {
	a := &Auth{
		DB:     db,
		Secret: []byte(secret),
		TTL:    ttl,
		Now:    time.Now,
	}
	cache := store.NewFIFO(context.Background(), ttl)
	tokenStrategy := bearer.New(a.verifyToken, cache)

	a.authenticator = auth.New()
	a.authenticator.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)
	return a
}

// IssueToken signs a token for user
func (a *Auth) IssueToken(user models.User) (string, time.Time, error) {
	now := a.Now()
	expires := now.Add(a.TTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(a.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Login checks email and password and returns the matching user
func (a *Auth) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := a.DB.FindByEmail(ctx, email)
	if err != nil {
		// still pay for a compare so unknown emails take as long as bad passwords
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("deepshield-placeholder"), bcrypt.MinCost)

// verifyToken validates the JWT and confirms its subject still exists
func (a *Auth) verifyToken(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		return a.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	user, err := a.DB.FindOne(ctx, c.Subject)
	if err != nil {
		return nil, fmt.Errorf("token subject %s not found: %w", c.Subject, err)
	}
	return auth.NewDefaultUser(user.Email, user.ID, []string{string(user.Role)}, nil), nil
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Success: false, Error: msg, Code: code})
}

// Middleware rejects requests without a valid bearer token and stores the
// caller on the request context
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.authenticator.Authenticate(r)
		if err != nil {
			zap.S().Debugw("unauthorized",
				"url", r.URL.String(),
				"error", err)
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHENTICATED")
			return
		}

		actor := Actor{ID: user.ID(), Email: user.UserName(), Role: models.RoleUser}
		for _, g := range user.Groups() {
			if g == string(models.RoleAdmin) {
				actor.Role = models.RoleAdmin
			}
		}
		zap.S().Debugw("user authenticated", "userId", actor.ID, "role", actor.Role)
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// AdminOnly rejects callers without the admin role. It must run after
// Middleware. The workflow checks the role again against the store.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHENTICATED")
			return
		}
		if !actor.IsAdmin() {
			writeAuthError(w, http.StatusForbidden, "admin role required", "FORBIDDEN")
			return
		}
		next.ServeHTTP(w, r)
	})
}
