package infra

import (
	"net/http"
	"testing"
	"time"
)

func TestSigner_GenerateHeaders(t *testing.T) {
	signer := NewSigner("key", "secret")
	signer.now = func() time.Time { return time.UnixMilli(1600000000000) }

	headers := signer.GenerateHeaders("GET", "/platform/fees", "")

	if headers["ACCESS-KEY"] != "key" {
		t.Errorf("Expected ACCESS-KEY to be 'key', got %s", headers["ACCESS-KEY"])
	}
	if headers["ACCESS-TIMESTAMP"] != "1600000000000" {
		t.Errorf("Expected fixed timestamp, got %s", headers["ACCESS-TIMESTAMP"])
	}
	if want := computeHmacSha256("1600000000000GET/platform/fees", "secret"); headers["ACCESS-SIGN"] != want {
		t.Errorf("Expected signature %s, got %s", want, headers["ACCESS-SIGN"])
	}
}

func TestSigner_Sign(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://config.example/platform/fees?env=prod", nil)

	var none *Signer
	none.Sign(req)
	if req.Header.Get("ACCESS-SIGN") != "" {
		t.Error("nil signer must not add headers")
	}

	if NewSigner("key", "") != nil {
		t.Error("Expected nil signer without a secret")
	}

	signer := NewSigner("key", "secret")
	signer.now = func() time.Time { return time.UnixMilli(1600000000000) }
	signer.Sign(req)
	if want := computeHmacSha256("1600000000000GET/platform/fees?env=prod", "secret"); req.Header.Get("ACCESS-SIGN") != want {
		t.Errorf("Expected query in signed path, got %s", req.Header.Get("ACCESS-SIGN"))
	}
}

func TestComputeHmacSha256(t *testing.T) {
	// Standard HMAC-SHA256 Test Vector
	key := "key"
	data := "The quick brown fox jumps over the lazy dog"
	// Base64 of f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8
	expected := "97yD9DBThCSxMpjmqm+xQ+9NWaFJRhdZl0edvC0aPNg="

	if result := computeHmacSha256(data, key); result != expected {
		t.Errorf("HMAC Mismatch. Expected %s, got %s", expected, result)
	}
}
