package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCredentials is returned when a request carries no credentials at all.
var ErrNoCredentials = errors.New("no credentials")

// Resolver identifies the caller of r.
type Resolver interface {
	Resolve(r *http.Request) (Principal, error)
}

// Claims is the JWT payload understood by JWTResolver.
type Claims struct {
	Role       string `json:"role"`
	HospitalID string `json:"hospital_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver validates HMAC-signed bearer tokens.
type JWTResolver struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTResolver returns a resolver for tokens signed with secret. When
// issuer is set the token's iss claim must match it.
func NewJWTResolver(secret, issuer string) (*JWTResolver, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is empty")
	}
	return &JWTResolver{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Resolve parses the Authorization bearer token. WebSocket clients that
// cannot set headers may pass the token as the access_token query parameter.
func (j *JWTResolver) Resolve(r *http.Request) (Principal, error) {
	raw := bearer(r)
	if raw == "" {
		return Principal{}, ErrNoCredentials
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid token: %w", err)
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return Principal{}, err
	}
	p := Principal{Role: role, HospitalID: claims.HospitalID, Subject: claims.Subject}
	if err := p.valid(); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Sign issues a token for p valid for ttl. Used by operators' tooling and
// tests.
func (j *JWTResolver) Sign(p Principal, ttl time.Duration) (string, error) {
	now := j.now()
	claims := Claims{
		Role:       string(p.Role),
		HospitalID: p.HospitalID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// HeaderResolver trusts identity headers set by an upstream gateway that has
// already authenticated the caller. Only deploy it behind such a gateway.
type HeaderResolver struct {
	RoleHeader     string
	HospitalHeader string
}

// Resolve reads the role and hospital headers.
func (h HeaderResolver) Resolve(r *http.Request) (Principal, error) {
	raw := r.Header.Get(h.RoleHeader)
	if raw == "" {
		return Principal{}, ErrNoCredentials
	}
	role, err := ParseRole(raw)
	if err != nil {
		return Principal{}, err
	}
	p := Principal{Role: role, HospitalID: strings.TrimSpace(r.Header.Get(h.HospitalHeader))}
	if err := p.valid(); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Anonymous resolves every request to an admin principal.
type Anonymous struct{}

// Resolve implements Resolver.
func (Anonymous) Resolve(*http.Request) (Principal, error) {
	return Principal{Role: RoleAdmin, Subject: "anonymous"}, nil
}
