package webhooks

import (
	"context"
	"testing"
)

func TestSign_KnownVector(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	got := Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
	want := "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestHeaderHMACVerifier_AcceptsOwnSignature(t *testing.T) {
	body := []byte(`{"event":"lead.created"}`)
	verifier := NewSignatureVerifier("s3cret")
	err := verifier.Verify(context.Background(), SignedRequest{
		Headers: map[string]string{"x-webhook-signature": Sign("s3cret", body)},
		Body:    body,
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestHeaderHMACVerifier_Rejections(t *testing.T) {
	body := []byte(`{"event":"lead.created"}`)
	cases := []struct {
		name     string
		verifier HeaderHMACVerifier
		headers  map[string]string
	}{
		{name: "missing header", verifier: NewSignatureVerifier("s3cret"), headers: nil},
		{name: "wrong secret", verifier: NewSignatureVerifier("other"), headers: map[string]string{SignatureHeader: Sign("s3cret", body)}},
		{name: "not hex", verifier: NewSignatureVerifier("s3cret"), headers: map[string]string{SignatureHeader: "zz"}},
		{name: "missing secret", verifier: NewSignatureVerifier(""), headers: map[string]string{SignatureHeader: Sign("s3cret", body)}},
		{name: "bad base64", verifier: HeaderHMACVerifier{Secret: "s3cret", Encoding: "base64"}, headers: map[string]string{SignatureHeader: "%%%"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.verifier.Verify(context.Background(), SignedRequest{Headers: tc.headers, Body: body})
			if err == nil {
				t.Fatalf("expected verification failure")
			}
		})
	}
}
