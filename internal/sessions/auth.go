package sessions

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token expired")
)

// Claims is the JWT payload a channel gateway issues after authenticating an
// end user out-of-band. Verifier checks such tokens for a caller that holds
// one; the Dispatcher takes no token and does not call it.
type Claims struct {
	SessionID   string `json:"sid"`
	ChannelID   int64  `json:"cid"`
	ChannelType string `json:"ctype"`
	jwt.RegisteredClaims
}

// Verifier validates bearer session tokens with a fixed HMAC secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Validate parses and verifies token, returning the embedded claims. Expired
// or malformed tokens are rejected; there is no refresh or renewal here,
// that belongs to whatever issued the token in the first place.
func (v *Verifier) Validate(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.SessionID == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Issue mints a token for tests and local tooling; production deployments
// issue tokens from the channel gateway, not from this package.
func (v *Verifier) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
