package paywave

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	pubnub "github.com/pubnub/go/v7"

	"trip-booking/internal/services/payment"
)

type Config struct {
	BaseURL    string `json:"baseUrl" mapstructure:"base_url"`
	MerchantID string `json:"merchantId" mapstructure:"merchant_id"`
	ClientID   string `json:"clientId" mapstructure:"client_id"`
	ClientKey  string `json:"clientKey" mapstructure:"client_key"`
	HMACKey    string `json:"hmacKey" mapstructure:"hmac_key"`

	PNSubKey  string `json:"pn_subkey" mapstructure:"pn_subkey"`
	PNUUID    string `json:"pn_uuid" mapstructure:"pn_uuid"`
	PNChannel string `json:"pn_channel" mapstructure:"pn_channel"`
}

// PayWave implements payment.Gateway against the PayWave backend.
// Capture confirmations arrive asynchronously on a PubNub channel the
// same way the synchronous API answers, so both paths feed the notice
// channel.
type PayWave struct {
	merchantID string

	pnSubKey  string
	pnUUID    string
	pnChannel string

	sub *subscribe

	client *Client
}

// New returns a new PayWave instance.
func New(ctx context.Context, cfg *Config) (*PayWave, error) {
	client := newClient(ctx, &ClientConfig{
		BaseURL:    cfg.BaseURL,
		MerchantID: cfg.MerchantID,
		ClientID:   cfg.ClientID,
		ClientKey:  cfg.ClientKey,
		HMACKey:    cfg.HMACKey,
	})

	// Connect to the PayWave backend. Get access token.
	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	// Notify access token expired.
	go client.notifyAccessTokenExpired(ctx)

	p := &PayWave{
		merchantID: cfg.MerchantID,
		pnSubKey:   cfg.PNSubKey,
		pnUUID:     cfg.PNUUID,
		pnChannel:  cfg.PNChannel,
		client:     client,
	}

	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(p.pnUUID))
	pnCfg.SubscribeKey = p.pnSubKey

	sub, err := p.newSubscription(ctx, pnCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to PayWave's PubNub channel: %v", err)
	}

	sub.pn.AddListener(sub.lis)
	sub.pn.Subscribe().Channels([]string{p.pnChannel}).Execute()
	p.sub = sub

	return p, nil
}

func (p *PayWave) CreateIntent(ctx context.Context, req *payment.CreateIntentRequest) (*payment.Intent, error) {
	out, err := p.client.createIntent(ctx, &intentPayload{
		MerchantID:  p.merchantID,
		ReferenceNo: req.TripOptionID,
		Amount:      req.AmountCents,
		Currency:    req.Currency,
		Method:      req.Method,
		Token:       req.Token,
	})
	if err != nil {
		return nil, err
	}

	if out.Status != payment.IntentCaptured {
		return nil, fmt.Errorf("paywave: intent %s not captured: %s", out.IntentID, out.Status)
	}

	return &payment.Intent{
		ID:          out.IntentID,
		AmountCents: out.Amount,
		Currency:    out.Currency,
		Status:      out.Status,
	}, nil
}

func (p *PayWave) Refund(ctx context.Context, intentID string, amountCents int64) error {
	return p.client.refund(ctx, intentID, amountCents)
}

func (p *PayWave) PartialRefund(ctx context.Context, intentID string, amountCents int64) error {
	return p.client.refund(ctx, intentID, amountCents)
}

func (p *PayWave) SetNoticeChannel(ch chan *payment.CaptureNotice) {
	p.sub.ch = ch
}

func (p *PayWave) Close(_ context.Context) error {
	p.sub.pn.UnsubscribeAll()
	return nil
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener
	ch  chan *payment.CaptureNotice
}

func (p *PayWave) newSubscription(ctx context.Context, pnCfg *pubnub.Config) (*subscribe, error) {
	sub := &subscribe{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}

	go sub.processSubscription(ctx)

	return sub, nil
}

type noticePayload struct {
	IntentID  string `json:"intentId"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	CreatedAt string `json:"createdAt"`
}

// ParseNotice decodes a capture notification body into the domain
// notice. The webhook callback and the PubNub subscription carry the
// same payload.
func ParseNotice(body []byte) (*payment.CaptureNotice, error) {
	var p noticePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return p.toDomain()
}

func (s *subscribe) processSubscription(ctx context.Context) {
	listener := s.lis
	for {
		select {
		case st := <-listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to pubnub")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to pubnub")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from pubnub")

			default:
				log.Printf("pubnub status category: %v", st.Category)
			}

		case message := <-listener.Message:
			raw, ok := message.Message.(string)
			if !ok {
				continue
			}

			var p noticePayload
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&p); err != nil {
				log.Println(err)
				continue
			}

			notice, err := p.toDomain()
			if err != nil {
				log.Println(err)
				continue
			}
			if s.ch != nil {
				s.ch <- notice
			}

		case <-ctx.Done():
			log.Println("close subscribe")
			return
		}
	}
}

func (p *noticePayload) toDomain() (*payment.CaptureNotice, error) {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.CreatedAt, time.Local)
	if err != nil {
		return nil, err
	}

	return &payment.CaptureNotice{
		IntentID:    p.IntentID,
		Status:      p.Status,
		AmountCents: p.Amount,
		CreatedAt:   ts,
	}, nil
}
