package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// OperatorClaim identifies who drives a migration run through the API.
type OperatorClaim struct {
	Operator string `json:"operator"`
	Role     string `json:"role"`
	jwt.StandardClaims
}

var ErrAPISecretNotSet = errors.New("MIGRATION_API_SECRET is not set")

// APISecret returns the operator token secret. Empty disables token checks.
func APISecret() []byte {
	return []byte(strings.TrimSpace(os.Getenv("MIGRATION_API_SECRET")))
}

func JwtGenerate(operator string, role string, lifespan time.Duration) (string, error) {
	secret := APISecret()
	if len(secret) == 0 {
		return "", ErrAPISecretNotSet
	}
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &OperatorClaim{
		Operator: operator,
		Role:     role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(lifespan).Unix(),
			IssuedAt:  now.Unix(),
		},
	})
	return t.SignedString(secret)
}

func JwtValidate(token string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, &OperatorClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return APISecret(), nil
	})
}
