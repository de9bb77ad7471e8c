package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`

	jwt.RegisteredClaims
}

// JWT verifies HS256 tokens whose subject is the user id.
type JWT struct {
	Secret []byte
	Leeway time.Duration
}

func (j JWT) Verify(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return j.Secret, nil
	}, jwt.WithLeeway(j.Leeway))
	if err != nil {
		return Claims{}, err
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return *c, nil
}

type ctxKey int

const userIDKey ctxKey = 1

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok && v != ""
}

// Identity resolves the caller. With a secret set, a bearer token is
// required; otherwise the user id is taken from Header as sent by a
// trusted gateway.
type Identity struct {
	JWT    *JWT
	Header string
}

func Middleware(id Identity) func(http.Handler) http.Handler {
	header := id.Header
	if header == "" {
		header = "X-User-Id"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string
			if id.JWT != nil {
				tok := bearerToken(r.Header.Get("Authorization"))
				if tok == "" {
					unauthorized(w, "missing bearer token")
					return
				}
				claims, err := id.JWT.Verify(tok)
				if err != nil {
					unauthorized(w, "invalid token")
					return
				}
				userID = claims.Subject
			} else {
				userID = strings.TrimSpace(r.Header.Get(header))
			}
			if userID == "" {
				unauthorized(w, "missing user id")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(v string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(v), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
