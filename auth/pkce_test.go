package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/ehr-auth-broker/oauthmodel"
)

const (
	rfcCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfcCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestChallengeS256MatchesRFC7636(t *testing.T) {
	require.Equal(t, rfcCodeChallenge, ChallengeS256(rfcCodeVerifier))
}

func TestVerifyPKCE(t *testing.T) {
	require.NoError(t, VerifyPKCE(rfcCodeVerifier, rfcCodeChallenge, oauthmodel.CodeMethodTypeS256))

	require.ErrorIs(t, VerifyPKCE(rfcCodeVerifier, "", oauthmodel.CodeMethodTypeS256), PKCEMissingChallengeErr)
	require.ErrorIs(t, VerifyPKCE(rfcCodeVerifier, rfcCodeChallenge, "plain"), PKCEUnsupportedMethodErr)
	require.ErrorIs(t, VerifyPKCE(rfcCodeVerifier, rfcCodeChallenge, ""), PKCEUnsupportedMethodErr)
	require.ErrorIs(t, VerifyPKCE("", rfcCodeChallenge, oauthmodel.CodeMethodTypeS256), PKCEMismatchErr)
	require.ErrorIs(t, VerifyPKCE(rfcCodeChallenge, rfcCodeChallenge, oauthmodel.CodeMethodTypeS256), PKCEMismatchErr)
}

func TestVerifyPKCEAnySingleBitFlipFails(t *testing.T) {
	verifier := []byte(rfcCodeVerifier)
	for i := range verifier {
		for bit := 0; bit < 8; bit++ {
			flipped := make([]byte, len(verifier))
			copy(flipped, verifier)
			flipped[i] ^= 1 << bit
			require.ErrorIs(t, VerifyPKCE(string(flipped), rfcCodeChallenge, oauthmodel.CodeMethodTypeS256), PKCEMismatchErr,
				"byte %d bit %d", i, bit)
		}
	}
}
