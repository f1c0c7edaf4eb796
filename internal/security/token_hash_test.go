package security

import (
	"testing"
)

func TestHashToken_Consistent(t *testing.T) {
	token := "test-verification-token-123"
	hash1 := HashToken(token)
	hash2 := HashToken(token)

	if hash1 != hash2 {
		t.Errorf("HashToken not consistent: hash1 = %q, hash2 = %q", hash1, hash2)
	}
	if len(hash1) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA-256 hex)", len(hash1))
	}
}

func TestHashToken_DifferentTokens(t *testing.T) {
	if HashToken("token-1") == HashToken("token-2") {
		t.Error("HashToken produced same hash for different tokens")
	}
}

func TestTokenHashEqual(t *testing.T) {
	stored := HashToken("abc")
	if !TokenHashEqual("abc", stored) {
		t.Error("TokenHashEqual should match the same token")
	}
	if TokenHashEqual("abd", stored) {
		t.Error("TokenHashEqual should reject a different token")
	}
	if TokenHashEqual("abc", "") {
		t.Error("TokenHashEqual should reject an empty stored hash")
	}
}
