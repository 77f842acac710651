package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimGatewayCaptureAndRefund(t *testing.T) {
	g := NewSimGateway()

	intent, err := g.CreateIntent(context.Background(), &CreateIntentRequest{
		TripOptionID: "opt1",
		AmountCents:  150000,
		Currency:     "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, IntentCaptured, intent.Status)
	assert.Equal(t, int64(150000), intent.AmountCents)

	require.NoError(t, g.Refund(context.Background(), intent.ID, intent.AmountCents))
	assert.Equal(t, int64(150000), g.Refunded(intent.ID))
	assert.Equal(t, IntentRefunded, g.Intent(intent.ID).Status)
}

func TestSimGatewayPartialRefund(t *testing.T) {
	g := NewSimGateway()

	intent, err := g.CreateIntent(context.Background(), &CreateIntentRequest{
		TripOptionID: "opt1",
		AmountCents:  150000,
		Currency:     "USD",
	})
	require.NoError(t, err)

	require.NoError(t, g.PartialRefund(context.Background(), intent.ID, 100000))
	assert.Equal(t, int64(100000), g.Refunded(intent.ID))
	assert.Equal(t, IntentPartiallyRefunded, g.Intent(intent.ID).Status)
}

func TestSimGatewayRefundUnknownIntent(t *testing.T) {
	g := NewSimGateway()

	assert.Error(t, g.Refund(context.Background(), "pi_missing", 100))
	assert.Zero(t, g.Refunded("pi_missing"))
}

func TestSimGatewayNotices(t *testing.T) {
	g := NewSimGateway()
	notices := make(chan *CaptureNotice, 1)
	g.SetNoticeChannel(notices)

	intent, err := g.CreateIntent(context.Background(), &CreateIntentRequest{
		TripOptionID: "opt1",
		AmountCents:  5000,
		Currency:     "USD",
	})
	require.NoError(t, err)

	notice := <-notices
	assert.Equal(t, intent.ID, notice.IntentID)
	assert.Equal(t, IntentCaptured, notice.Status)
	assert.Equal(t, int64(5000), notice.AmountCents)
}

// A consumer that stops draining the channel must not wedge the
// gateway: later captures still go through, dropping their notices.
func TestSimGatewayUnconsumedNoticesDoNotBlock(t *testing.T) {
	g := NewSimGateway()
	g.SetNoticeChannel(make(chan *CaptureNotice, 1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_, err := g.CreateIntent(context.Background(), &CreateIntentRequest{
				TripOptionID: "opt1",
				AmountCents:  1000,
				Currency:     "USD",
			})
			assert.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway blocked on an unconsumed notice channel")
	}
}
