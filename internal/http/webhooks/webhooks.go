// Package webhooks implements the Shopify webhook receivers. Every receiver
// verifies the HMAC signature against the app secret, deduplicates on the
// webhook delivery id, and resolves the tenant from the shop domain header.
// Shopify retries deliveries that do not get a 2xx, so receivers answer 200
// even when the payload is skippable; only verification failures are
// rejected.
package webhooks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/perkmill/perkmill/internal/loyalty"
	"github.com/perkmill/perkmill/internal/models"
	"github.com/perkmill/perkmill/internal/shopify"
)

// dedupTTL bounds how long a processed delivery id is remembered.
const dedupTTL = 48 * time.Hour

// Handler receives Shopify webhooks.
type Handler struct {
	db         *gorm.DB
	redis      *redis.Client
	events     *loyalty.EventsService
	enrollment *loyalty.EnrollmentService
	appSecret  string
}

// NewHandler constructs a webhook Handler. The redis client is optional;
// without it deliveries are not deduplicated.
func NewHandler(db *gorm.DB, rdb *redis.Client, events *loyalty.EventsService, enrollment *loyalty.EnrollmentService, appSecret string) *Handler {
	return &Handler{db: db, redis: rdb, events: events, enrollment: enrollment, appSecret: appSecret}
}

// Register mounts the webhook routes.
func (h *Handler) Register(r *gin.Engine) {
	group := r.Group("/webhooks")
	group.POST("/orders-create", h.OrdersCreate)
	group.POST("/customers-create", h.CustomersCreate)
	group.POST("/app-uninstalled", h.AppUninstalled)
}

// verify reads the body, checks the HMAC signature, applies delivery
// deduplication, and resolves the tenant. A nil tenant with ok=true means
// the delivery should be acknowledged without processing.
func (h *Handler) verify(c *gin.Context) (*models.Tenant, []byte, bool) {
	body, errRead := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return nil, nil, false
	}

	if !shopify.VerifyWebhookHMAC(h.appSecret, body, c.GetHeader(shopify.HeaderHmac)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return nil, nil, false
	}

	if h.redis != nil {
		if webhookID := strings.TrimSpace(c.GetHeader(shopify.HeaderWebhookID)); webhookID != "" {
			fresh, errDedup := h.redis.SetNX(c.Request.Context(), "webhook:"+webhookID, 1, dedupTTL).Result()
			if errDedup != nil {
				log.WithError(errDedup).Warn("webhook dedup check failed")
			} else if !fresh {
				c.JSON(http.StatusOK, gin.H{"ok": true, "duplicate": true})
				return nil, nil, false
			}
		}
	}

	shopDomain := strings.TrimSpace(c.GetHeader(shopify.HeaderShopDomain))
	var tenant models.Tenant
	errFind := h.db.WithContext(c.Request.Context()).
		Where("shop_domain = ?", shopDomain).
		First(&tenant).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			// Unknown shop: acknowledge so Shopify stops retrying.
			log.WithField("shop_domain", shopDomain).Warn("webhook for unknown shop")
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return nil, body, true
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant lookup failed"})
		return nil, nil, false
	}
	return &tenant, body, true
}

// orderPayload is the slice of the orders/create payload this app reads.
type orderPayload struct {
	TotalPrice string `json:"total_price"`
	Customer   struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	} `json:"customer"`
}

// OrdersCreate records a purchase for the ordering member, which feeds the
// streak and milestone machinery. Orders from non-members are ignored.
func (h *Handler) OrdersCreate(c *gin.Context) {
	tenant, body, ok := h.verify(c)
	if !ok || tenant == nil {
		return
	}

	var payload orderPayload
	if errUnmarshal := json.Unmarshal(body, &payload); errUnmarshal != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(payload.Customer.Email))
	if email == "" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	var member models.Member
	errFind := h.db.WithContext(c.Request.Context()).
		Where("tenant_id = ? AND email = ?", tenant.ID, email).
		First(&member).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "member lookup failed"})
		return
	}

	total := parsePrice(payload.TotalPrice)
	if errRecord := h.events.RecordPurchase(c.Request.Context(), member.ID, total); errRecord != nil {
		log.WithError(errRecord).WithField("member_id", member.ID).Error("record purchase failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record purchase failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// customerPayload is the slice of the customers/create payload this app reads.
type customerPayload struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Note      string `json:"note"`
}

// CustomersCreate enrolls the new customer as a member; enrollment claims
// any pending guest points for the email.
func (h *Handler) CustomersCreate(c *gin.Context) {
	tenant, body, ok := h.verify(c)
	if !ok || tenant == nil {
		return
	}

	var payload customerPayload
	if errUnmarshal := json.Unmarshal(body, &payload); errUnmarshal != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(payload.Email) == "" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	input := loyalty.EnrollInput{
		Email:             payload.Email,
		FirstName:         payload.FirstName,
		LastName:          payload.LastName,
		ShopifyCustomerID: formatCustomerID(payload.ID),
		ReferralCode:      referralCodeFromNote(payload.Note),
	}
	result, errEnroll := h.enrollment.Enroll(c.Request.Context(), tenant.ID, input)
	if errEnroll != nil {
		log.WithError(errEnroll).WithField("tenant_id", tenant.ID).Error("webhook enrollment failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enroll failed"})
		return
	}
	// Duplicate enrollments arrive when Shopify retries; acknowledge them.
	c.JSON(http.StatusOK, gin.H{"ok": true, "enrolled": result.Success})
}

// AppUninstalled soft-deactivates the tenant. Data is retained for
// reinstalls.
func (h *Handler) AppUninstalled(c *gin.Context) {
	tenant, _, ok := h.verify(c)
	if !ok || tenant == nil {
		return
	}

	now := time.Now().UTC()
	if errSave := h.db.WithContext(c.Request.Context()).
		Model(&models.Tenant{}).
		Where("id = ?", tenant.ID).
		Updates(map[string]any{
			"is_active":      false,
			"access_token":   "",
			"uninstalled_at": now,
		}).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deactivate tenant failed"})
		return
	}
	log.WithField("shop_domain", tenant.ShopDomain).Info("tenant deactivated on uninstall")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
