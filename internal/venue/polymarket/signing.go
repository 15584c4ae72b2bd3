// Package polymarket implements the Polymarket side of the engine: HMAC
// request signing, CLOB and data-api REST clients, the market and user
// WebSocket feeds, and signed order construction.
package polymarket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header names for L2 (HMAC) authentication.
const (
	HeaderAPIKey     = "POLY_API_KEY"
	HeaderSignature  = "POLY_SIGNATURE"
	HeaderTimestamp  = "POLY_TIMESTAMP"
	HeaderPassphrase = "POLY_PASSPHRASE"
	HeaderAddress    = "POLY_ADDRESS"
)

// Credentials is the HMAC triplet plus the trader address sent with every
// authenticated request. Immutable after construction.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
	Address    string
}

// BuildHmacSignature signs timestamp+method+path+body with the
// base64-decoded secret and returns a URL-safe base64 signature
// ('+' -> '-', '/' -> '_', padding kept). When the request carries a query
// string the signature is computed over the path without it.
func BuildHmacSignature(secret string, timestamp int64, method, requestPath, body string) (string, error) {
	if i := strings.IndexByte(requestPath, '?'); i >= 0 {
		requestPath = requestPath[:i]
	}

	message := strconv.FormatInt(timestamp, 10) + method + requestPath + body

	// Secrets are distributed base64url-encoded; normalize before decoding.
	sanitized := strings.ReplaceAll(secret, "-", "+")
	sanitized = strings.ReplaceAll(sanitized, "_", "/")

	key, err := base64.StdEncoding.DecodeString(sanitized)
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))

	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	sig = strings.ReplaceAll(sig, "+", "-")
	sig = strings.ReplaceAll(sig, "/", "_")

	return sig, nil
}

// AuthHeaders builds the five L2 headers for one request.
func (c *Credentials) AuthHeaders(method, requestPath, body string) (map[string]string, error) {
	ts := time.Now().Unix()
	return c.authHeadersAt(ts, method, requestPath, body)
}

func (c *Credentials) authHeadersAt(timestamp int64, method, requestPath, body string) (map[string]string, error) {
	sig, err := BuildHmacSignature(c.Secret, timestamp, method, requestPath, body)
	if err != nil {
		return nil, fmt.Errorf("build hmac signature: %w", err)
	}

	return map[string]string{
		HeaderAPIKey:     c.APIKey,
		HeaderSignature:  sig,
		HeaderTimestamp:  strconv.FormatInt(timestamp, 10),
		HeaderPassphrase: c.Passphrase,
		HeaderAddress:    c.Address,
	}, nil
}
