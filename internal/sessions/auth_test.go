package sessions

import (
	"testing"
	"time"
)

func TestVerifierIssueAndValidateRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Issue(Claims{SessionID: "sess-1", ChannelID: 7, ChannelType: "slack"}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.SessionID != "sess-1" || claims.ChannelID != 7 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Issue(Claims{SessionID: "sess-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := v.Validate(token); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifierRejectsWrongSecret(t *testing.T) {
	issuer := NewVerifier("secret-a")
	token, err := issuer.Issue(Claims{SessionID: "sess-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	verifier := NewVerifier("secret-b")
	if _, err := verifier.Validate(token); err == nil {
		t.Fatalf("expected validation failure with mismatched secret")
	}
}
