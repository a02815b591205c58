package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshTokenBytes is 160 bits of entropy, rendered as 40 hex chars.
const refreshTokenBytes = 20

// randReader is swapped in tests.
var randReader io.Reader = rand.Reader

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) UserID() string { return c.Subject }

// TokenIssuer mints and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl}
}

// Issue creates an access token for the session, valid from now for the configured TTL.
func (t *TokenIssuer) Issue(userID, sessionID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(t.ttl)
	claims := AccessClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks signature, issuer and expiry as of now. Every failure is
// reported as ErrInvalidAccessToken.
func (t *TokenIssuer) Verify(token string, now time.Time) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// SessionID returns the session named by a token that carries a valid
// signature and issuer, whether or not it has expired.
func (t *TokenIssuer) SessionID(token string) (string, bool) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid || claims.Issuer != t.issuer || claims.SessionID == "" {
		return "", false
	}
	return claims.SessionID, true
}

// NewRefreshToken returns an opaque refresh token and the hash to persist.
func NewRefreshToken() (plain string, hash string, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", "", errors.Join(errors.New("generate refresh token"), err)
	}
	plain = hex.EncodeToString(b)
	return plain, HashRefreshToken(plain), nil
}

// HashRefreshToken is the lookup key stored in place of the token.
func HashRefreshToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
