package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry returns the exp claim of a JWT without verifying its
// signature. The API owns the key; this side only wants to know when to
// stop trusting the token. Opaque tokens and tokens without exp return the
// zero time.
func tokenExpiry(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time.UTC()
}

// effectiveExpiry picks the earlier of the API-reported expiry and the
// token's own exp claim, ignoring whichever is unknown.
func effectiveExpiry(reported time.Time, token string) time.Time {
	claimed := tokenExpiry(token)
	switch {
	case reported.IsZero():
		return claimed
	case claimed.IsZero():
		return reported
	case claimed.Before(reported):
		return claimed
	default:
		return reported
	}
}
