// Package auth provides bearer token verification for the planning API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Roles.
const (
	RolePlanner = "planner"
	RoleAdmin   = "admin"
)

// Modes.
const (
	ModeDev  = "dev"
	ModeHMAC = "hmac"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownMode  = errors.New("unsupported auth mode")
)

// Verifier validates bearer tokens and extracts the caller's role.
// In dev mode the token is the role name itself. In hmac mode it is an HS256 JWT.
type Verifier struct {
	Mode       string
	HMACSecret []byte
	RoleClaim  string
	// Leeway tolerates clock skew on exp/nbf checks.
	Leeway time.Duration
}

type Principal struct {
	Subject string
	Role    string
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

func NewVerifier(mode, secret string) (*Verifier, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = ModeDev
	}
	switch mode {
	case ModeDev:
	case ModeHMAC:
		if secret == "" {
			return nil, errors.New("hmac auth requires a secret")
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
	return &Verifier{Mode: mode, HMACSecret: []byte(secret), RoleClaim: "role", Leeway: 30 * time.Second}, nil
}

// Claims is the token body issued and accepted in hmac mode.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (v *Verifier) Verify(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrInvalidToken
	}
	switch v.Mode {
	case ModeDev:
		role := strings.ToLower(token)
		if role != RolePlanner && role != RoleAdmin {
			return Principal{}, fmt.Errorf("%w: dev token must be a role name", ErrInvalidToken)
		}
		return Principal{Subject: "dev", Role: role}, nil
	case ModeHMAC:
		return v.verifyHMAC(token)
	default:
		return Principal{}, fmt.Errorf("%w: %s", ErrUnknownMode, v.Mode)
	}
}

func (v *Verifier) verifyHMAC(token string) (Principal, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg %v", t.Header["alg"])
		}
		return v.HMACSecret, nil
	})
	if err != nil {
		if ve := new(jwt.ValidationError); errors.As(err, &ve) && ve.Errors&(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet) != 0 && v.Leeway > 0 {
			if !withinLeeway(claims, v.Leeway) {
				return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
			}
		} else {
			return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else if !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	role, _ := claims[v.RoleClaim].(string)
	role = strings.ToLower(role)
	if role == "" {
		role = RolePlanner
	}
	sub, _ := claims["sub"].(string)
	return Principal{Subject: sub, Role: role}, nil
}

// withinLeeway re-checks exp and nbf allowing for skew.
func withinLeeway(c jwt.MapClaims, leeway time.Duration) bool {
	now := time.Now()
	return c.VerifyExpiresAt(now.Add(-leeway).Unix(), false) && c.VerifyNotBefore(now.Add(leeway).Unix(), false)
}

// Issue signs an HS256 token for subject with the given role. Used by the CLI and tests.
func Issue(secret []byte, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
