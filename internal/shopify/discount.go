package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/perkmill/perkmill/internal/util"
)

const adminAPIVersion = "2024-10"

// DiscountRequest describes a single-use fixed-amount discount code.
type DiscountRequest struct {
	CustomerID string  // Shopify customer reference; restricts code usage when set.
	Amount     float64 // Fixed discount amount in shop currency.
	ValidDays  int     // Days until the code expires.
	CodePrefix string  // Human-readable code prefix, e.g. "ANNIV".
}

// DiscountIssuer creates discount codes on the external platform.
type DiscountIssuer interface {
	CreateDiscountCode(ctx context.Context, shopDomain, accessToken string, req DiscountRequest) (string, error)
}

// AdminClient talks to the Shopify Admin REST API.
type AdminClient struct {
	httpClient *http.Client
}

// NewAdminClient constructs an AdminClient.
func NewAdminClient() *AdminClient {
	return &AdminClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateDiscountCode creates a price rule and an attached single-use code.
// The returned code is random-suffixed to avoid collisions.
func (c *AdminClient) CreateDiscountCode(ctx context.Context, shopDomain, accessToken string, req DiscountRequest) (string, error) {
	if strings.TrimSpace(shopDomain) == "" || strings.TrimSpace(accessToken) == "" {
		return "", fmt.Errorf("shopify: missing shop credentials")
	}
	if req.Amount <= 0 {
		return "", fmt.Errorf("shopify: discount amount must be positive")
	}

	code := buildCode(req.CodePrefix)
	now := time.Now().UTC()
	validDays := req.ValidDays
	if validDays <= 0 {
		validDays = 30
	}

	rule := map[string]any{
		"price_rule": map[string]any{
			"title":              code,
			"target_type":        "line_item",
			"target_selection":   "all",
			"allocation_method":  "across",
			"value_type":         "fixed_amount",
			"value":              fmt.Sprintf("-%.2f", req.Amount),
			"customer_selection": "all",
			"usage_limit":        1,
			"once_per_customer":  true,
			"starts_at":          now.Format(time.RFC3339),
			"ends_at":            now.AddDate(0, 0, validDays).Format(time.RFC3339),
		},
	}
	if strings.TrimSpace(req.CustomerID) != "" {
		pr := rule["price_rule"].(map[string]any)
		pr["customer_selection"] = "prerequisite"
		pr["prerequisite_customer_ids"] = []string{req.CustomerID}
	}

	var ruleResp struct {
		PriceRule struct {
			ID int64 `json:"id"`
		} `json:"price_rule"`
	}
	if errPost := c.post(ctx, shopDomain, accessToken, "price_rules.json", rule, &ruleResp); errPost != nil {
		return "", fmt.Errorf("shopify: create price rule: %w", errPost)
	}
	if ruleResp.PriceRule.ID == 0 {
		return "", fmt.Errorf("shopify: price rule response missing id")
	}

	codeBody := map[string]any{
		"discount_code": map[string]any{"code": code},
	}
	path := fmt.Sprintf("price_rules/%d/discount_codes.json", ruleResp.PriceRule.ID)
	if errPost := c.post(ctx, shopDomain, accessToken, path, codeBody, nil); errPost != nil {
		return "", fmt.Errorf("shopify: create discount code: %w", errPost)
	}
	return code, nil
}

func (c *AdminClient) post(ctx context.Context, shopDomain, accessToken, path string, body, out any) error {
	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return errMarshal
	}

	url := fmt.Sprintf("https://%s/admin/api/%s/%s", shopDomain, adminAPIVersion, path)
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if errReq != nil {
		return errReq
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", accessToken)

	log.WithFields(log.Fields{
		"shop_domain":  shopDomain,
		"access_token": util.MaskToken(accessToken),
		"path":         path,
	}).Debug("shopify admin api call")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return errDo
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func buildCode(prefix string) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = "REWARD"
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return prefix + "-" + suffix
}
