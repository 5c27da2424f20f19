package infra

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"
)

// Signer authenticates calls to the platform configuration API.
// Signature = base64(HMAC-SHA256(secret, timestamp + method + path + body)).
type Signer struct {
	accessKey string
	secretKey string
	now       func() time.Time
}

// NewSigner returns nil when no key is configured, so callers can skip signing.
func NewSigner(accessKey, secretKey string) *Signer {
	if accessKey == "" || secretKey == "" {
		return nil
	}
	return &Signer{accessKey: accessKey, secretKey: secretKey, now: time.Now}
}

// GenerateHeaders creates the authentication headers for a request.
// path includes the query string, if any.
func (s *Signer) GenerateHeaders(method, path, body string) map[string]string {
	timestamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	return map[string]string{
		"ACCESS-KEY":       s.accessKey,
		"ACCESS-SIGN":      computeHmacSha256(timestamp+method+path+body, s.secretKey),
		"ACCESS-TIMESTAMP": timestamp,
	}
}

// Sign sets the authentication headers on a body-less request.
func (s *Signer) Sign(req *http.Request) {
	if s == nil {
		return
	}
	for k, v := range s.GenerateHeaders(req.Method, req.URL.RequestURI(), "") {
		req.Header.Set(k, v)
	}
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
