package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SimGateway is the development stand-in: every capture succeeds and
// refunds are tracked in memory so tests can assert the atomicity
// guarantee.
type SimGateway struct {
	mu       sync.Mutex
	intents  map[string]*Intent
	refunded map[string]int64
	notices  chan *CaptureNotice
}

func NewSimGateway() *SimGateway {
	return &SimGateway{
		intents:  make(map[string]*Intent),
		refunded: make(map[string]int64),
	}
}

func (g *SimGateway) CreateIntent(_ context.Context, req *CreateIntentRequest) (*Intent, error) {
	g.mu.Lock()
	intent := &Intent{
		ID:          fmt.Sprintf("pi_%s", uuid.New().String()),
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Status:      IntentCaptured,
	}
	g.intents[intent.ID] = intent
	notices := g.notices
	g.mu.Unlock()

	// Notices are advisory; a slow consumer must not block captures.
	if notices != nil {
		select {
		case notices <- &CaptureNotice{
			IntentID:    intent.ID,
			Status:      IntentCaptured,
			AmountCents: intent.AmountCents,
			CreatedAt:   time.Now(),
		}:
		default:
		}
	}

	return intent, nil
}

func (g *SimGateway) Refund(_ context.Context, intentID string, amountCents int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return fmt.Errorf("unknown intent %s", intentID)
	}

	intent.Status = IntentRefunded
	g.refunded[intentID] += amountCents
	return nil
}

func (g *SimGateway) PartialRefund(_ context.Context, intentID string, amountCents int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return fmt.Errorf("unknown intent %s", intentID)
	}

	intent.Status = IntentPartiallyRefunded
	g.refunded[intentID] += amountCents
	return nil
}

func (g *SimGateway) SetNoticeChannel(ch chan *CaptureNotice) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notices = ch
}

func (g *SimGateway) Close(_ context.Context) error { return nil }

// Refunded reports the total refunded amount for an intent.
func (g *SimGateway) Refunded(intentID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[intentID]
}

// Intent returns the tracked intent, or nil.
func (g *SimGateway) Intent(intentID string) *Intent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intents[intentID]
}
