package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundTrip(t *testing.T) {
	token, exp, err := Issue("alice", RoleStudent, "rollcall", "secret", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatal("expiry should be in the future")
	}

	claims, err := Parse(token, "secret", "rollcall")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "alice" || claims.Role != RoleStudent {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, _, err := Issue("alice", RoleTeacher, "rollcall", "secret", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := Parse(token, "other-secret", "rollcall"); err == nil {
		t.Fatal("expected signature verification failure")
	}
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	token, _, err := Issue("alice", RoleTeacher, "someone-else", "secret", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := Parse(token, "secret", "rollcall"); err == nil {
		t.Fatal("expected issuer mismatch failure")
	}
}
