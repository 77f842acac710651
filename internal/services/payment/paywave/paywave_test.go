package paywave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-booking/internal/services/payment"
)

func TestParseNotice(t *testing.T) {
	body := []byte(`{"intentId":"pi_42","status":"captured","amount":150000,"createdAt":"2026-08-30 14:05:09"}`)

	notice, err := ParseNotice(body)
	require.NoError(t, err)

	assert.Equal(t, "pi_42", notice.IntentID)
	assert.Equal(t, payment.IntentCaptured, notice.Status)
	assert.Equal(t, int64(150000), notice.AmountCents)
	assert.Equal(t, time.Date(2026, 8, 30, 14, 5, 9, 0, time.Local), notice.CreatedAt)
}

func TestParseNoticeRejectsBadPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"Not JSON", `notice`},
		{"Bad timestamp", `{"intentId":"pi_1","status":"captured","amount":1,"createdAt":"soon"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNotice([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}
