package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleFaculty is the only role the portal accepts.
const RoleFaculty = "faculty"

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrIssuerMismatch = errors.New("issuer mismatch")
	ErrNotFaculty     = errors.New("token is not a faculty token")
)

// Token is a signed access token and its expiry.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Claims is the JWT payload. The faculty id travels as the subject.
type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// FacultyID returns the authenticated faculty id.
func (c Claims) FacultyID() string { return c.Subject }

// Issue signs an HS256 access token for a faculty member.
func Issue(facultyID, name, issuer, key string, ttl time.Duration) (Token, error) {
	if facultyID == "" {
		return Token{}, errors.New("faculty id required")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Name: name,
		Role: RoleFaculty,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   facultyID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Parse validates signature, expiry, issuer and role.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, ErrIssuerMismatch
	}
	if claims.Role != RoleFaculty {
		return Claims{}, ErrNotFaculty
	}
	return *claims, nil
}
