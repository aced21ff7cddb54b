package credentials

import "testing"

// TestErrCredentialNotFoundIsDistinct covers the not-found sentinel without
// a real keyring backend; testKeyring() will fail in a sandboxed test
// environment with no Keychain/Secret Service, so NewStore is not called.
// This test only checks the sentinel error is non-nil and has a message.
func TestErrCredentialNotFoundIsDistinct(t *testing.T) {
	if ErrCredentialNotFound == nil {
		t.Fatal("ErrCredentialNotFound must not be nil")
	}
	if ErrCredentialNotFound.Error() == "" {
		t.Fatal("ErrCredentialNotFound must have a message")
	}
}

func TestSetNotionToken_RejectsEmpty(t *testing.T) {
	s := &Store{}
	if err := s.SetNotionToken(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}
