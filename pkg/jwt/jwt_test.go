package jwt

import "testing"

func TestGenerateAndValidate(t *testing.T) {
	j := NewJWT([]byte("secret"), 60)
	token, err := j.GenerateToken("u1")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := j.ValidateToken(token)
	if err != nil || claims.UserID != "u1" {
		t.Fatalf("ValidateToken = %+v, %v", claims, err)
	}

	if _, err := NewJWT([]byte("other"), 60).ValidateToken(token); err == nil {
		t.Fatal("token accepted with wrong secret")
	}
	if _, err := NewJWT([]byte("secret"), -60).ValidateToken(mustToken(t, NewJWT([]byte("secret"), -60))); err == nil {
		t.Fatal("expired token accepted")
	}
}

func mustToken(t *testing.T, j *JWT) string {
	t.Helper()
	token, err := j.GenerateToken("u1")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}
