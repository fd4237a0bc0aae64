package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const SignatureHeader = "X-Webhook-Signature"

// Sign returns the lowercase hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedRequest is what a receiver hands to a verifier.
type SignedRequest struct {
	Headers map[string]string
	Body    []byte
}

type Verifier interface {
	Verify(ctx context.Context, req SignedRequest) error
}

type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

// NewSignatureVerifier verifies the signature header this package emits.
func NewSignatureVerifier(secret string) HeaderHMACVerifier {
	return HeaderHMACVerifier{
		Header:   SignatureHeader,
		Secret:   secret,
		Encoding: "hex",
	}
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req SignedRequest) error {
	headerName := strings.TrimSpace(v.Header)
	if headerName == "" {
		headerName = SignatureHeader
	}
	header := strings.TrimSpace(headerValue(req.Headers, headerName))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", headerName)
	}
	if v.Secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(v.Secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("webhooks: signature verification failed")
		}
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("webhooks: signature verification failed")
		}
	}
	return nil
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var _ Verifier = HeaderHMACVerifier{}
