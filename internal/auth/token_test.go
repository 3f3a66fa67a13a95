package auth

import (
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("test-secret")

func TestMintParseRoundTrip(t *testing.T) {
	raw, err := MintToken(testSecret, 42, "+989121234567", time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}

	token, err := ParseToken(raw)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if token.Claims.UserID != 42 {
		t.Errorf("Expected user id 42, got %d", token.Claims.UserID)
	}
	if token.Claims.Phone != "+989121234567" {
		t.Errorf("Expected phone to round trip, got %s", token.Claims.Phone)
	}
	if token.Expired() {
		t.Error("Expected fresh token to be unexpired")
	}
	if !strings.HasPrefix(token.AuthorizationHeader(), "Bearer ") {
		t.Errorf("Unexpected authorization header %q", token.AuthorizationHeader())
	}
}

func TestExpiredToken(t *testing.T) {
	raw, err := MintToken(testSecret, 1, "", -time.Minute)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}
	token, err := ParseToken(raw)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if !token.Expired() {
		t.Error("Expected token past its expiry to report expired")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not.a.token", "a.b"} {
		if _, err := ParseToken(raw); err == nil {
			t.Errorf("Expected error for %q", raw)
		}
	}
}

func TestValidateToken(t *testing.T) {
	raw, err := MintToken(testSecret, 9, "", time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}

	claims, err := ValidateToken(testSecret, raw)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != 9 {
		t.Errorf("Expected user id 9, got %d", claims.UserID)
	}

	if _, err := ValidateToken([]byte("wrong-secret"), raw); err == nil {
		t.Error("Expected validation to fail with the wrong secret")
	}
}
