package payment

import (
	"context"
	"time"
)

// Intent is a captured (or refunded) payment at the gateway.
type Intent struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

const (
	IntentCaptured          = "captured"
	IntentRefunded          = "refunded"
	IntentPartiallyRefunded = "partially_refunded"
)

type CreateIntentRequest struct {
	TripOptionID string `json:"trip_option_id"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	Method       string `json:"method"`
	Token        string `json:"token"`
}

// CaptureNotice is the gateway's asynchronous capture confirmation.
type CaptureNotice struct {
	IntentID    string    `json:"intent_id"`
	Status      string    `json:"status"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

// Gateway is the capability interface for payment providers.
type Gateway interface {
	// CreateIntent captures the full amount up front. Booking never
	// starts without funds secured.
	CreateIntent(ctx context.Context, req *CreateIntentRequest) (*Intent, error)

	// Refund returns the full captured amount.
	Refund(ctx context.Context, intentID string, amountCents int64) error

	// PartialRefund returns part of the captured amount, used by the
	// cancellation flow for a single component.
	PartialRefund(ctx context.Context, intentID string, amountCents int64) error

	// SetNoticeChannel sets the channel receiving capture notices.
	SetNoticeChannel(ch chan *CaptureNotice)

	// Close gracefully closes any connections.
	Close(ctx context.Context) error
}
