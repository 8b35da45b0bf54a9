package utils

import (
	"errors"
	"testing"
	"time"
)

func TestJwtRoundTrip(t *testing.T) {
	t.Setenv("MIGRATION_API_SECRET", "s3cret")

	token, err := JwtGenerate("maria", "operator", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	parsed, err := JwtValidate(token)
	if err != nil || !parsed.Valid {
		t.Fatalf("validate: %v", err)
	}
	claim, ok := parsed.Claims.(*OperatorClaim)
	if !ok {
		t.Fatalf("unexpected claims %T", parsed.Claims)
	}
	if claim.Operator != "maria" || claim.Role != "operator" {
		t.Fatalf("unexpected claim %+v", claim)
	}

	t.Setenv("MIGRATION_API_SECRET", "rotated")
	if _, err := JwtValidate(token); err == nil {
		t.Fatalf("expected a token signed with the old secret to fail")
	}
}

func TestJwtExpired(t *testing.T) {
	t.Setenv("MIGRATION_API_SECRET", "s3cret")
	token, err := JwtGenerate("maria", "operator", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := JwtValidate(token); err == nil {
		t.Fatalf("expected an expired token to fail")
	}
}

func TestJwtGenerateNeedsSecret(t *testing.T) {
	t.Setenv("MIGRATION_API_SECRET", " ")
	if _, err := JwtGenerate("maria", "operator", time.Hour); !errors.Is(err, ErrAPISecretNotSet) {
		t.Fatalf("expected ErrAPISecretNotSet, got %v", err)
	}
}
