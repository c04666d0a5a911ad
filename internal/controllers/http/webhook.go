package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"bindery-orders/internal/apperror"
	"bindery-orders/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	signatureHeader    = "X-Webhook-Signature"
	sharedSecretHeader = "X-Webhook-Secret"
	maxWebhookBody     = 64 << 10
)

// PaymentWebhook answers 200 with the reconciliation outcome for anything the
// gateway should not resend, and 503 when a retry may succeed.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}

	if len(h.webhookSecret) == 0 {
		slog.WarnContext(ctx, "webhook signature check skipped, no secret configured")
	} else if !validSignature(h.webhookSecret, body, c.GetHeader(signatureHeader), c.GetHeader(sharedSecretHeader)) {
		slog.WarnContext(ctx, "webhook signature rejected", "ip", c.ClientIP())
		badRequest(c, "invalid webhook signature")
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		badRequest(c, "malformed webhook body")
		return
	}

	res, err := h.checkout.HandlePaymentNotice(ctx, services.PaymentNotice{
		ImpUID:      req.ImpUID,
		MerchantUID: req.MerchantUID,
		Status:      req.Status,
	})
	if err != nil {
		if apperror.IsRetryable(err) {
			slog.WarnContext(ctx, "webhook deferred", "imp_uid", req.ImpUID, "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "retry later", Retryable: true})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// validSignature accepts a hex HMAC-SHA256 of the raw body or, for older gateway
// configurations, the shared secret itself.
func validSignature(secret, body []byte, signature, shared string) bool {
	if signature != "" {
		return hmac.Equal([]byte(strings.ToLower(signature)), []byte(SignWebhook(secret, body)))
	}
	if shared != "" {
		return subtle.ConstantTimeCompare([]byte(shared), secret) == 1
	}
	return false
}

// SignWebhook returns the X-Webhook-Signature value for body.
func SignWebhook(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
