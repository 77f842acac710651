package paywave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"
)

type ClientConfig struct {
	BaseURL    string `json:"baseUrl" mapstructure:"base_url"`
	MerchantID string `json:"merchantId" mapstructure:"merchant_id"`
	ClientID   string `json:"clientId" mapstructure:"client_id"`
	ClientKey  string `json:"clientKey" mapstructure:"client_key"`
	HMACKey    string `json:"hmacKey" mapstructure:"hmac_key"`
}

type Client struct {
	// baseURL is the base url of the PayWave backend.
	baseURL string

	// merchantID is the merchant id at PayWave.
	merchantID string

	// clientID is the client id of the PayWave backend.
	clientID string

	// clientKey is the client key of the PayWave backend.
	clientKey string

	// hmacKey signs request bodies.
	hmacKey string

	// accessToken is used to authenticate with the PayWave backend.
	accessToken string

	// mu is used to lock access token.
	mu sync.Mutex

	// toggleTokenRefresher is used to notify token refresher to refresh token.
	toggleTokenRefresher chan struct{}

	// hc is the http client.
	hc *http.Client
}

// newClient creates a new instance of the PayWave client.
func newClient(_ context.Context, c *ClientConfig) *Client {
	return &Client{
		baseURL:    c.BaseURL,
		merchantID: c.MerchantID,
		clientID:   c.ClientID,
		clientKey:  c.ClientKey,
		hmacKey:    c.HMACKey,

		// make a buffered channel to avoid blocking.
		toggleTokenRefresher: make(chan struct{}, 1),

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// notifyAccessTokenExpired loops forever renewing the access token with
// an exponential backOff strategy.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refreshed")
		}

		// reconnect with exponential backOff strategy
		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				log.Printf("notifyAccessTokenExpired: %v", err)
				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

// setAccessToken set access token to client.
func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// connect authenticates with the PayWave backend and returns an access token.
func (c *Client) connect(ctx context.Context) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, "v1", "auth", "token")
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{
		"client_id":  c.clientID,
		"client_key": c.clientKey,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paywave auth: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("paywave auth: empty access token")
	}

	return out.AccessToken, nil
}

type intentPayload struct {
	MerchantID  string `json:"merchantId"`
	ReferenceNo string `json:"referenceNo"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Method      string `json:"method"`
	Token       string `json:"token"`
}

type intentResponse struct {
	IntentID string `json:"intentId"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (c *Client) createIntent(ctx context.Context, p *intentPayload) (*intentResponse, error) {
	var out intentResponse
	if err := c.do(ctx, http.MethodPost, []string{"v1", "intents"}, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) refund(ctx context.Context, intentID string, amount int64) error {
	body := map[string]any{
		"merchantId": c.merchantID,
		"amount":     amount,
	}
	return c.do(ctx, http.MethodPost, []string{"v1", "intents", intentID, "refund"}, body, nil)
}

func (c *Client) do(ctx context.Context, method string, parts []string, in, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, parts...)
	if err != nil {
		return err
	}

	data, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.getAccessToken())
	req.Header.Set("X-Signature", Hmac256(data, []byte(c.hmacKey)))

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Nudge the token refresher and surface the failure.
		select {
		case c.toggleTokenRefresher <- struct{}{}:
		default:
		}
		return errors.New("paywave: unauthorized")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("paywave: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
