package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// tokenService issues and verifies the signed session credentials. Tokens
// are self-contained: subject, role and expiry live in the claims, so
// verification needs nothing but the signing secret. No session state is
// kept server-side, which keeps the API horizontally scalable.
//
// The role claim is a snapshot taken at issuance. A user demoted after
// logging in keeps the old role until the token expires; keep the TTL
// short if that window matters.
type tokenService struct {
	secret []byte
	ttl    time.Duration
}

type sessionClaims struct {
	Role role `json:"role"`
	jwt.RegisteredClaims
}

func newTokenService(secret string, ttl time.Duration) *tokenService {
	return &tokenService{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (t *tokenService) issue(u *user) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// verify is a pure function of the token string and the signing secret.
// Any malformation, forged signature, unexpected algorithm or elapsed
// expiry comes back as errInvalidToken; the caller gets no detail beyond
// that.
func (t *tokenService) verify(tokenStr string) (principal, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tk.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return principal{}, errInvalidToken
	}
	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || !claims.Role.valid() {
		return principal{}, errInvalidToken
	}
	return principal{UserID: userID, Role: claims.Role}, nil
}
