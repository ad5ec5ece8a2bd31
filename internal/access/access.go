// Package access identifies the caller of an operation and decides whether
// they may perform it. Actors come from HS256 bearer tokens or from static
// service API keys.
package access

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnauthorized means no valid credentials were presented.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")
)

// Role is an actor's role.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(v string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(v))); r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", v)
}

// Actor is an authenticated caller.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsStaff reports whether the actor is a teacher or an admin.
func (a Actor) IsStaff() bool {
	return a.Role == RoleTeacher || a.Role == RoleAdmin
}

// RequireRole fails with ErrForbidden unless the actor holds one of roles.
// Admins pass every role check.
func RequireRole(a Actor, roles ...Role) error {
	if a.Role == RoleAdmin || slices.Contains(roles, a.Role) {
		return nil
	}
	return fmt.Errorf("%w: role %s not allowed", ErrForbidden, a.Role)
}

// RequireSelfOrStaff allows staff, or a student acting on their own records.
func RequireSelfOrStaff(a Actor, studentID string) error {
	if a.IsStaff() || (a.Role == RoleStudent && a.ID == studentID) {
		return nil
	}
	return fmt.Errorf("%w: %s may not act for student %s", ErrForbidden, a.ID, studentID)
}

// Claims is the bearer token payload. The subject is the actor id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type apiKey struct {
	role Role
	hash []byte
}

// Authenticator verifies bearer tokens and API keys.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	keys   map[string]apiKey
	now    func() time.Time
}

// NewAuthenticator creates an authenticator. Each API key entry has the form
// "id:role:bcrypt-hash"; callers then present "id:secret".
func NewAuthenticator(secret string, ttl time.Duration, apiKeys []string) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	a := &Authenticator{
		secret: []byte(secret),
		ttl:    ttl,
		keys:   make(map[string]apiKey, len(apiKeys)),
		now:    time.Now,
	}
	for _, entry := range apiKeys {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("api key entry must be id:role:hash")
		}
		role, err := ParseRole(parts[1])
		if err != nil {
			return nil, fmt.Errorf("api key %s: %w", parts[0], err)
		}
		if _, err := bcrypt.Cost([]byte(parts[2])); err != nil {
			return nil, fmt.Errorf("api key %s: invalid bcrypt hash: %w", parts[0], err)
		}
		if _, dup := a.keys[parts[0]]; dup {
			return nil, fmt.Errorf("api key %s: duplicate id", parts[0])
		}
		a.keys[parts[0]] = apiKey{role: role, hash: []byte(parts[2])}
	}
	return a, nil
}

// IssueToken signs a bearer token for the actor.
func (a *Authenticator) IssueToken(actor Actor) (string, error) {
	if actor.ID == "" {
		return "", fmt.Errorf("actor id is empty")
	}
	if _, err := ParseRole(string(actor.Role)); err != nil {
		return "", err
	}
	now := a.now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  actor.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if a.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken verifies a bearer token and returns its actor.
func (a *Authenticator) ParseToken(token string) (Actor, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Actor{}, fmt.Errorf("%w: invalid token: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return Actor{}, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	role, err := ParseRole(string(claims.Role))
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return Actor{ID: claims.Subject, Role: role}, nil
}

// VerifyAPIKey checks a presented "id:secret" key.
func (a *Authenticator) VerifyAPIKey(presented string) (Actor, error) {
	id, secret, ok := strings.Cut(presented, ":")
	if !ok || id == "" || secret == "" {
		return Actor{}, fmt.Errorf("%w: malformed api key", ErrUnauthorized)
	}
	key, ok := a.keys[id]
	if !ok {
		return Actor{}, fmt.Errorf("%w: unknown api key", ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword(key.hash, []byte(secret)); err != nil {
		return Actor{}, fmt.Errorf("%w: api key mismatch", ErrUnauthorized)
	}
	return Actor{ID: id, Role: key.role}, nil
}

// Authenticate resolves the actor from an Authorization header value or an
// API key. The bearer token wins when both are present.
func (a *Authenticator) Authenticate(authorization, apiKey string) (Actor, error) {
	if token, ok := strings.CutPrefix(authorization, "Bearer "); ok && token != "" {
		return a.ParseToken(strings.TrimSpace(token))
	}
	if apiKey != "" {
		return a.VerifyAPIKey(apiKey)
	}
	return Actor{}, fmt.Errorf("%w: missing credentials", ErrUnauthorized)
}
