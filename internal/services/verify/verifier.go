package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Result is the verifier's verdict on whether an entity exists.
type Result string

const (
	Verified   Result = "VERIFIED"
	Unverified Result = "UNVERIFIED"
	Unknown    Result = "UNKNOWN"
)

// EntityVerifier is the opaque existence-check collaborator used during
// pre-booking validation of hotels.
type EntityVerifier interface {
	Verify(ctx context.Context, name, location string) (Result, error)
}

// HTTPVerifier calls the verification service.
type HTTPVerifier struct {
	baseURL string
	hc      *http.Client
}

func NewHTTPVerifier(baseURL string) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL: baseURL,
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, name, location string) (Result, error) {
	endpoint, err := url.JoinPath(v.baseURL, "v1", "verify")
	if err != nil {
		return Unknown, err
	}

	q := url.Values{}
	q.Set("name", name)
	q.Set("location", location)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Unknown, err
	}

	resp, err := v.hc.Do(req)
	if err != nil {
		return Unknown, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unknown, fmt.Errorf("verifier: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Result Result `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Unknown, err
	}

	switch out.Result {
	case Verified, Unverified, Unknown:
		return out.Result, nil
	}
	return Unknown, nil
}

// StaticVerifier answers every check with a fixed result. Used in the
// development environment and in tests.
type StaticVerifier struct {
	Result Result
	Err    error
}

func (v *StaticVerifier) Verify(_ context.Context, _, _ string) (Result, error) {
	return v.Result, v.Err
}
