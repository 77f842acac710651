package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"trip-booking/config"
	"trip-booking/internal/services/payment"
	"trip-booking/internal/services/payment/paywave"
)

// PaymentHandler receives PayWave capture notifications over HTTP. The
// webhook is the delivery path next to the PubNub subscription; both
// feed the same notice channel. A caller must present the shared
// webhook secret and an HMAC signature over the raw body.
type PaymentHandler struct {
	app        *pocketbase.PocketBase
	secretHash string
	hmacKey    []byte
	notices    chan<- *payment.CaptureNotice
}

func NewPaymentHandler(app *pocketbase.PocketBase, cfg *config.Config, notices chan<- *payment.CaptureNotice) (*PaymentHandler, error) {
	secretHash, err := paywave.HashWebhookSecret(cfg.PayWave.WebhookSecret)
	if err != nil {
		return nil, err
	}

	return &PaymentHandler{
		app:        app,
		secretHash: secretHash,
		hmacKey:    []byte(cfg.PayWave.HMACKey),
		notices:    notices,
	}, nil
}

// PayWaveNotify - capture notification callback from the PayWave backend
func (h *PaymentHandler) PayWaveNotify(e *core.RequestEvent) error {
	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.authorize(e.Request.Header, body); err != nil {
		return err
	}

	notice, err := paywave.ParseNotice(body)
	if err != nil {
		return apis.NewBadRequestError("Invalid notification payload", err)
	}

	select {
	case h.notices <- notice:
	default:
		slog.Warn("capture notice dropped, channel full", "intent_id", notice.IntentID)
	}

	return e.JSON(http.StatusOK, map[string]any{"received": true})
}

func (h *PaymentHandler) authorize(header http.Header, body []byte) error {
	if !paywave.VerifyWebhookSecret(h.secretHash, header.Get("X-Webhook-Secret")) {
		return apis.NewUnauthorizedError("Invalid webhook secret", nil)
	}
	if !paywave.VerifySignature(body, h.hmacKey, header.Get("X-Signature")) {
		return apis.NewUnauthorizedError("Invalid signature", nil)
	}
	return nil
}
