package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims is the complete claim set of a session token. A token carrying
// any other claim, or missing one of these, is rejected.
var tokenClaims = []string{"account", "iat", "nbf", "exp"}

// generateToken mints a session token for account issued at now
func generateToken(account string, now time.Time, ttl time.Duration, secret []byte) (string, error) {
	claims := jwt.MapClaims{
		"account": account,
		"iat":     now.Unix(),
		"nbf":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// validateToken parses tokenString and checks signature, time claims, the
// exact claim set and the account claim. It returns the issued-at time.
func validateToken(tokenString, account string, now time.Time, secret []byte) (time.Time, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("verify: %w", err)
	}

	if len(claims) != len(tokenClaims) {
		return time.Time{}, fmt.Errorf("claim set has %d claims, want %d", len(claims), len(tokenClaims))
	}
	for _, name := range tokenClaims {
		if _, ok := claims[name]; !ok {
			return time.Time{}, fmt.Errorf("missing claim %q", name)
		}
	}

	if sub, ok := claims["account"].(string); !ok || sub != account {
		return time.Time{}, errors.New("account claim mismatch")
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return time.Time{}, errors.New("bad iat claim")
	}
	if nbf, err := claims.GetNotBefore(); err != nil || nbf == nil {
		return time.Time{}, errors.New("bad nbf claim")
	}
	return iat.Time, nil
}
