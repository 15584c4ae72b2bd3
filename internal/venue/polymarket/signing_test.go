package polymarket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reference secrets: 32 known bytes, base64 encoded in both alphabets.
const (
	refSecretStd = "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="
	refSecretURL = "-z77Pvs--z77Pvs--z77Pvs--z77Pvs--z77Pvs--z4="
)

func TestBuildHmacSignatureReferenceVector(t *testing.T) {
	sig, err := BuildHmacSignature(refSecretStd, 1700000000, "GET", "/data/orders", "")
	require.NoError(t, err)
	assert.Equal(t, "NTt0e8XQzUuVTici5whIU-0NfgRXijqf0FarNw-ik2Q=", sig)
}

func TestBuildHmacSignatureURLSafeSecret(t *testing.T) {
	// Secrets distributed in the base64url alphabet decode to the same key.
	sig, err := BuildHmacSignature(refSecretURL, 1700000000, "POST", "/order", `{"order":1}`)
	require.NoError(t, err)
	assert.Equal(t, "DisDtLr-GB-SgILTtLN7gJrVb7zZx1bhJ-bHbLzKb0Q=", sig)
}

func TestBuildHmacSignatureStripsQueryString(t *testing.T) {
	plain, err := BuildHmacSignature(refSecretStd, 1700000000, "GET", "/data/orders", "")
	require.NoError(t, err)

	withQuery, err := BuildHmacSignature(refSecretStd, 1700000000, "GET", "/data/orders?market=0xabc&next_cursor=MA==", "")
	require.NoError(t, err)

	assert.Equal(t, plain, withQuery)
}

func TestBuildHmacSignatureDeterministic(t *testing.T) {
	a, err := BuildHmacSignature(refSecretStd, 1700000000, "DELETE", "/order", `{"orderID":"0x1"}`)
	require.NoError(t, err)
	b, err := BuildHmacSignature(refSecretStd, 1700000000, "DELETE", "/order", `{"orderID":"0x1"}`)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := BuildHmacSignature(refSecretStd, 1700000001, "DELETE", "/order", `{"orderID":"0x1"}`)
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "timestamp must change the signature")
}

func TestBuildHmacSignatureBadSecret(t *testing.T) {
	_, err := BuildHmacSignature("not base64!!", 1700000000, "GET", "/", "")
	assert.Error(t, err)
}

func TestAuthHeaders(t *testing.T) {
	creds := &Credentials{
		APIKey:     "key-1",
		Secret:     refSecretStd,
		Passphrase: "pass-1",
		Address:    "0xEOA",
	}

	headers, err := creds.authHeadersAt(1700000000, "GET", "/data/orders", "")
	require.NoError(t, err)

	assert.Equal(t, "key-1", headers[HeaderAPIKey])
	assert.Equal(t, "pass-1", headers[HeaderPassphrase])
	assert.Equal(t, "0xEOA", headers[HeaderAddress])
	assert.Equal(t, "1700000000", headers[HeaderTimestamp])
	assert.Equal(t, "NTt0e8XQzUuVTici5whIU-0NfgRXijqf0FarNw-ik2Q=", headers[HeaderSignature])
}
