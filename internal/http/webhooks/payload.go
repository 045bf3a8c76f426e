package webhooks

import (
	"strconv"
	"strings"
)

// parsePrice parses Shopify's string-encoded decimal prices. Malformed
// values count as zero spend rather than failing the delivery.
func parsePrice(value string) float64 {
	parsed, errParse := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if errParse != nil || parsed < 0 {
		return 0
	}
	return parsed
}

func formatCustomerID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// referralCodeFromNote extracts a "ref:CODE" marker from the customer note,
// which is how the storefront referral link tags sign-ups.
func referralCodeFromNote(note string) string {
	for _, field := range strings.Fields(note) {
		if code, found := strings.CutPrefix(field, "ref:"); found {
			return strings.TrimSpace(code)
		}
	}
	return ""
}
