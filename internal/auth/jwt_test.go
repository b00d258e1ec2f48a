package auth

import (
	"testing"
	"time"
)

func TestCreateAndVerifyToken(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	token, err := CreateToken("u1", cfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	claims, err := VerifyToken(token, cfg)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("expected u1, got %q", claims.UserID)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	token, err := CreateToken("u1", cfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if _, err := VerifyToken(token, TokenConfig{Secret: "other"}); err == nil {
		t.Fatalf("expected verification error")
	}
}

func TestDocumentToken_RoundTrip(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	token, err := CreateDocumentToken("alice", "key-1", "text", cfg)
	if err != nil {
		t.Fatalf("CreateDocumentToken: %v", err)
	}
	claims, err := VerifyDocumentToken(token, "key-1", cfg)
	if err != nil {
		t.Fatalf("VerifyDocumentToken: %v", err)
	}
	if claims.UserID != "alice" || claims.DocType != "text" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestDocumentToken_WrongKeyRejected(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	token, err := CreateDocumentToken("alice", "key-1", "text", cfg)
	if err != nil {
		t.Fatalf("CreateDocumentToken: %v", err)
	}
	if _, err := VerifyDocumentToken(token, "key-2", cfg); err == nil {
		t.Fatalf("expected rejection for mismatched key")
	}
}

func TestDocumentToken_MissingFields(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	if _, err := CreateDocumentToken("", "key", "text", cfg); err == nil {
		t.Fatalf("expected error for missing user")
	}
	if _, err := CreateDocumentToken("u", "", "text", cfg); err == nil {
		t.Fatalf("expected error for missing key")
	}
}
