// Package auth issues and verifies the bearer tokens used by the
// greenhouse directory API, and provides the middleware that gates the
// authenticated endpoints.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/greenhouse-mgmt/usrdir/internal/logger"
	"github.com/greenhouse-mgmt/usrdir/internal/models"
)

type userGetter interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

// Auth builds signed JWTs for authenticated users and validates the
// bearer tokens of incoming requests.
type Auth struct {
	// db is the interface to the user data storage.
	db userGetter

	// signingSecretKey is the key used to sign JWTs.
	signingSecretKey []byte

	// tokenTTL bounds the lifetime of issued tokens.
	tokenTTL time.Duration
}

// Claims represents the JWT claims used by the system.
// It embeds standard JWT claims and adds the user identifier.
type Claims struct {
	jwt.RegisteredClaims
	UserID int `json:"user_id"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// UserIDKey is the context key used to store and retrieve the authenticated user's ID.
const UserIDKey ContextKey = "userID"

// New creates an Auth handler with the given user data access layer,
// signing secret, and token lifetime.
func New(db userGetter, signingSecretKey []byte, tokenTTL time.Duration) *Auth {
	return &Auth{
		db:               db,
		signingSecretKey: signingSecretKey,
		tokenTTL:         tokenTTL,
	}
}

// BuildToken returns a signed bearer token for the given user.
func (a *Auth) BuildToken(userID int) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(a.signingSecretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Authenticate is an HTTP middleware that validates the bearer token of
// the Authorization header, checks the user still exists, and stores the
// user ID in the request context. Requests without a valid token are
// rejected with 401.
func (a *Auth) Authenticate(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		userID, err := a.getUserIDFromAuthorizationHeader(request)
		if err != nil {
			logger.Log.Debugln("rejecting request:", zap.Error(err))
			writeUnauthorized(response)

			return
		}

		usr, err := a.db.GetUserByID(request.Context(), userID)
		if err != nil {
			logger.Log.Debugln("error calling the `a.db.GetUserByID()`:", zap.Error(err))
			writeUnauthorized(response)

			return
		}

		ctx := context.WithValue(request.Context(), UserIDKey, usr.ID)
		requestWithCtx := request.WithContext(ctx)

		h.ServeHTTP(response, requestWithCtx)
	}

	return http.HandlerFunc(middleware)
}

func (a *Auth) getUserIDFromAuthorizationHeader(request *http.Request) (int, error) {
	authorization := request.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authorization, "Bearer ")
	if tokenString == "" {
		return 0, fmt.Errorf("missing bearer token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.signingSecretKey, nil
		},
	)
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}

	return claims.UserID, nil
}

func writeUnauthorized(response http.ResponseWriter) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(http.StatusUnauthorized)

	if err := json.NewEncoder(response).Encode(map[string]string{"error": "unauthorized"}); err != nil {
		logger.Log.Debugln("error writing the unauthorized response:", zap.Error(err))
	}
}
