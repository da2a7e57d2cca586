package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	ts := TokenService{Secret: []byte("test-secret"), Issuer: "test", Duration: time.Hour}
	u := &User{ID: "u1", Username: "reader", Email: "reader@example.com", TokenVersion: 3}

	token, exp, err := ts.Sign(u)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Errorf("expiry %v is not in the future", exp)
	}

	claims, err := ts.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "reader" || claims.TokenVersion != 3 {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Issuer != "test" || claims.Subject != "u1" {
		t.Errorf("registered claims = %+v", claims.RegisteredClaims)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	signer := TokenService{Secret: []byte("secret-a"), Issuer: "test", Duration: time.Hour}
	verifier := TokenService{Secret: []byte("secret-b"), Issuer: "test", Duration: time.Hour}

	token, _, err := signer.Sign(&User{ID: "u1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.Parse(token); err == nil {
		t.Fatal("expected parse failure with mismatched secret")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	ts := TokenService{Secret: []byte("test-secret"), Issuer: "test", Duration: -time.Minute}
	token, _, err := ts.Sign(&User{ID: "u1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ts.Parse(token); err == nil {
		t.Fatal("expected parse failure for expired token")
	}
}
