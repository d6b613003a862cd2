package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/jrsteele09/ehr-auth-broker/oauthmodel"
)

// ChallengeS256 derives BASE64URL-NOPAD(SHA256(verifier)).
func ChallengeS256(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// VerifyPKCE compares the derived challenge byte for byte with the stored one.
// A missing stored challenge or any method other than S256 always fails.
func VerifyPKCE(verifier, storedChallenge string, method oauthmodel.CodeMethodType) error {
	if storedChallenge == "" {
		return PKCEMissingChallengeErr
	}
	if method != oauthmodel.CodeMethodTypeS256 {
		return PKCEUnsupportedMethodErr
	}
	if verifier == "" {
		return PKCEMismatchErr
	}
	if subtle.ConstantTimeCompare([]byte(ChallengeS256(verifier)), []byte(storedChallenge)) != 1 {
		return PKCEMismatchErr
	}
	return nil
}
