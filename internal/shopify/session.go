package shopify

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the App Bridge session token claims this app relies on.
type SessionClaims struct {
	Dest string `json:"dest"` // Shop URL, e.g. https://shop.myshopify.com
	jwt.RegisteredClaims
}

// ParseSessionToken validates an App Bridge session token (HS256 signed with
// the app secret) and returns the shop domain it was issued for.
func ParseSessionToken(secret, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("shopify: empty session token")
	}

	claims := &SessionClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("shopify: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if errParse != nil {
		return "", fmt.Errorf("shopify: parse session token: %w", errParse)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("shopify: invalid session token")
	}

	domain := strings.TrimPrefix(strings.TrimSpace(claims.Dest), "https://")
	domain = strings.TrimSuffix(domain, "/")
	if domain == "" {
		return "", fmt.Errorf("shopify: session token missing dest claim")
	}
	return domain, nil
}
