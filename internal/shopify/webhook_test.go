package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookHMAC(t *testing.T) {
	t.Parallel()

	secret := "shpss_test_secret"
	body := []byte(`{"id": 42, "email": "a@b.com"}`)

	if !VerifyWebhookHMAC(secret, body, sign(secret, body)) {
		t.Fatal("valid signature rejected")
	}
	if VerifyWebhookHMAC(secret, body, sign("other_secret", body)) {
		t.Fatal("wrong-secret signature accepted")
	}
	if VerifyWebhookHMAC(secret, []byte(`{"id": 43}`), sign(secret, body)) {
		t.Fatal("tampered body accepted")
	}
	if VerifyWebhookHMAC(secret, body, "") {
		t.Fatal("empty signature accepted")
	}
	if VerifyWebhookHMAC("", body, sign("", body)) {
		t.Fatal("empty secret accepted")
	}
}

func TestParseSessionToken(t *testing.T) {
	t.Parallel()

	secret := "app_secret"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		Dest: "https://demo.myshopify.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		t.Fatalf("sign token: %v", errSign)
	}

	domain, errParse := ParseSessionToken(secret, signed)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if domain != "demo.myshopify.com" {
		t.Fatalf("domain = %q", domain)
	}

	if _, errWrong := ParseSessionToken("wrong_secret", signed); errWrong == nil {
		t.Fatal("wrong-secret token accepted")
	}
	if _, errEmpty := ParseSessionToken(secret, ""); errEmpty == nil {
		t.Fatal("empty token accepted")
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		Dest: "https://demo.myshopify.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signedExpired, errSignExpired := expired.SignedString([]byte(secret))
	if errSignExpired != nil {
		t.Fatalf("sign expired token: %v", errSignExpired)
	}
	if _, errExpired := ParseSessionToken(secret, signedExpired); errExpired == nil {
		t.Fatal("expired token accepted")
	}
}

func TestBuildCode(t *testing.T) {
	t.Parallel()

	code := buildCode("anniv")
	if !strings.HasPrefix(code, "ANNIV-") {
		t.Fatalf("code = %q, want ANNIV- prefix", code)
	}
	if len(code) != len("ANNIV-")+8 {
		t.Fatalf("code = %q, want 8-char suffix", code)
	}
	if buildCode("") == buildCode("") {
		t.Fatal("codes must be unique")
	}
	if !strings.HasPrefix(buildCode(""), "REWARD-") {
		t.Fatal("empty prefix must fall back to REWARD")
	}
}
