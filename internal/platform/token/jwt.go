package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is embedded in bearer tokens issued on login. Possession is
// authorization; there is no revocation list.
type SessionClaims struct {
	Sub int64 `json:"sub"`
	jwt.RegisteredClaims
}

// EmailClaims is embedded in stateless email verification links.
type EmailClaims struct {
	Sub   int64  `json:"sub"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret     []byte
	sessionTTL time.Duration
	emailTTL   time.Duration
}

func NewSigner(secret string, sessionTTL, emailTTL time.Duration) *Signer {
	return &Signer{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		emailTTL:   emailTTL,
	}
}

func (s *Signer) NewSessionToken(userID int64) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Sub: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionTTL)),
			Audience:  []string{"accounts-api"},
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

func (s *Signer) ParseSessionToken(tokenString string) (*SessionClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*SessionClaims); ok && tok.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func (s *Signer) NewEmailToken(userID int64, email string) (string, error) {
	now := time.Now()
	claims := EmailClaims{
		Sub:   userID,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.emailTTL)),
			Audience:  []string{"accounts-api"},
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

func (s *Signer) ParseEmailToken(tokenString string) (*EmailClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &EmailClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*EmailClaims); ok && tok.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
