// Package http carries the gin middleware shared by the API surfaces.
package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/perkmill/perkmill/internal/models"
	"github.com/perkmill/perkmill/internal/shopify"
)

// tenantKey is the gin context key the middleware stores the tenant under.
const tenantKey = "tenant"

// SessionAuthMiddleware authenticates merchant API requests with a Shopify
// App Bridge session token and resolves the tenant it was issued for.
func SessionAuthMiddleware(db *gorm.DB, appSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session token"})
			return
		}

		shopDomain, errParse := shopify.ParseSessionToken(appSecret, token)
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}

		var tenant models.Tenant
		errFind := db.WithContext(c.Request.Context()).
			Where("shop_domain = ? AND is_active = ?", shopDomain, true).
			First(&tenant).Error
		if errFind != nil {
			log.WithError(errFind).WithField("shop_domain", shopDomain).Warn("session tenant lookup failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown shop"})
			return
		}

		c.Set(tenantKey, &tenant)
		c.Next()
	}
}

// TenantFrom returns the tenant resolved by SessionAuthMiddleware.
func TenantFrom(c *gin.Context) *models.Tenant {
	value, ok := c.Get(tenantKey)
	if !ok {
		return nil
	}
	tenant, _ := value.(*models.Tenant)
	return tenant
}

// SetTenant stores a tenant on the context; test hook for handler tests.
func SetTenant(c *gin.Context, tenant *models.Tenant) {
	c.Set(tenantKey, tenant)
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
