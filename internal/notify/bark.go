package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BarkSender pushes notifications through a Bark server
type BarkSender struct {
	baseURL   *url.URL
	deviceKey string
	group     string
	http      *http.Client
}

type barkPush struct {
	DeviceKey string `json:"device_key"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Group     string `json:"group,omitempty"`
}

type barkResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewBarkSender creates a Bark push client
func NewBarkSender(rawURL, deviceKey, group string, timeout time.Duration) (*BarkSender, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("bark: base url is required")
	}
	if deviceKey == "" {
		return nil, fmt.Errorf("bark: device key is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("bark: base url must include scheme")
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return &BarkSender{
		baseURL:   parsed,
		deviceKey: deviceKey,
		group:     group,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

func (b *BarkSender) Send(ctx context.Context, title, body string) error {
	payload, err := json.Marshal(barkPush{DeviceKey: b.deviceKey, Title: title, Body: body, Group: b.group})
	if err != nil {
		return err
	}
	endpoint := *b.baseURL
	endpoint.Path += "/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var out barkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("bark: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || out.Code != http.StatusOK {
		return fmt.Errorf("bark: push failed: %s (%d %s)", resp.Status, out.Code, out.Message)
	}
	return nil
}
