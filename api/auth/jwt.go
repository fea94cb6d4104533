package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier accepts HS256 tokens signed with a shared secret. It backs
// local development and tests; production uses Firebase ID tokens.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) JWTVerifier {
	return JWTVerifier{secret: []byte(secret)}
}

func (v JWTVerifier) Verify(ctx context.Context, tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("invalid token: %v", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Principal{}, errors.New("token has no subject")
	}
	p := Principal{UID: sub}
	p.Email, _ = claims["email"].(string)
	if at, ok := claims["auth_time"].(float64); ok {
		p.AuthTime = time.Unix(int64(at), 0).UTC()
	}
	return p, nil
}

// IssueToken mints a token for uid that was authenticated at authTime.
func (v JWTVerifier) IssueToken(uid, email string, authTime time.Time, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":       uid,
		"email":     email,
		"auth_time": authTime.Unix(),
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// NoopAdmin stands in for an identity provider when there is none.
type NoopAdmin struct{}

func (NoopAdmin) DeleteUser(context.Context, string) error { return nil }
