package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/aeo-scorer/backend/models"
)

const ContextKeyIdentity = "identity"

// Claims is the JWT payload carried by every authenticated request.
type Claims struct {
	UserID string      `json:"uid"`
	Plan   string      `json:"plan"`
	Role   models.Role `json:"role"`
	jwtlib.RegisteredClaims
}

// Identity converts the claims, defaulting the role to user.
func (c *Claims) Identity() models.Identity {
	role := c.Role
	switch role {
	case models.RoleAdmin, models.RoleDemo:
	default:
		role = models.RoleUser
	}
	return models.Identity{UserID: c.UserID, Plan: c.Plan, Role: role}
}

// Authenticator signs and verifies HS256 tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Sign creates a token for id valid for ttl.
func (a *Authenticator) Sign(id models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: id.UserID,
		Plan:   id.Plan,
		Role:   id.Role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   id.UserID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates a token string and returns the claims.
func (a *Authenticator) Parse(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no uid")
	}
	return claims, nil
}

// Auth rejects requests without a valid bearer token and stores the caller's
// identity in the context.
func (a *Authenticator) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := NormalizeToken(c.GetHeader("Authorization"))
		if token == "" {
			Abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := a.Parse(token)
		if err != nil {
			Abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(ContextKeyIdentity, claims.Identity())
		c.Next()
	}
}

// CurrentIdentity extracts the authenticated identity from context.
func CurrentIdentity(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(ContextKeyIdentity)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
