package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestVerifier(allowInsecure bool) *SignatureVerifier {
	return NewSignatureVerifier(map[string]string{
		"offramp": "offramp-secret",
		"onchain": "onchain-secret",
	}, allowInsecure, zap.NewNop())
}

func TestVerifyValidSignature(t *testing.T) {
	verifier := newTestVerifier(false)
	body := []byte(`{"event":"order.settled"}`)

	sig := ComputeHMAC("offramp-secret", body)
	assert.NoError(t, verifier.Verify("offramp", body, sig))
}

func TestVerifyAcceptsSha256Prefix(t *testing.T) {
	verifier := newTestVerifier(false)
	body := []byte(`{"event":"order.settled"}`)

	sig := "sha256=" + ComputeHMAC("offramp-secret", body)
	assert.NoError(t, verifier.Verify("offramp", body, sig))
}

func TestVerifyAcceptsUppercaseDigest(t *testing.T) {
	verifier := newTestVerifier(false)
	body := []byte(`{"event":"order.settled"}`)

	sig := strings.ToUpper(ComputeHMAC("offramp-secret", body))
	assert.NoError(t, verifier.Verify("offramp", body, sig))
	assert.NoError(t, verifier.Verify("offramp", body, "SHA256="+sig))
}

func TestVerifyProviderIsCaseInsensitive(t *testing.T) {
	verifier := newTestVerifier(false)
	body := []byte(`{}`)

	sig := ComputeHMAC("onchain-secret", body)
	assert.NoError(t, verifier.Verify("ONCHAIN", body, sig))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	verifier := newTestVerifier(false)

	sig := ComputeHMAC("offramp-secret", []byte(`{"amount":"100"}`))
	err := verifier.Verify("offramp", []byte(`{"amount":"999"}`), sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	verifier := newTestVerifier(false)
	body := []byte(`{}`)

	sig := ComputeHMAC("some-other-secret", body)
	assert.ErrorIs(t, verifier.Verify("offramp", body, sig), ErrInvalidSignature)
}

func TestVerifyMissingSignatureHeader(t *testing.T) {
	verifier := newTestVerifier(false)

	assert.ErrorIs(t, verifier.Verify("offramp", []byte(`{}`), ""), ErrMissingSignature)
	assert.ErrorIs(t, verifier.Verify("offramp", []byte(`{}`), "sha256="), ErrMissingSignature)
}

func TestVerifyUnknownProviderRejectedWhenSecure(t *testing.T) {
	verifier := newTestVerifier(false)

	err := verifier.Verify("unknown", []byte(`{}`), "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyInsecureModeSkipsMissingSecret(t *testing.T) {
	verifier := newTestVerifier(true)

	assert.NoError(t, verifier.Verify("unknown", []byte(`{}`), ""))

	// A configured secret is still enforced even in insecure mode
	err := verifier.Verify("offramp", []byte(`{}`), "bogus")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestHasSecret(t *testing.T) {
	verifier := newTestVerifier(false)

	assert.True(t, verifier.HasSecret("offramp"))
	assert.True(t, verifier.HasSecret("Onchain"))
	assert.False(t, verifier.HasSecret("direct"))
}
