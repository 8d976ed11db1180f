package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// VAPIDConfig holds the application server keys.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
	TTL        time.Duration
}

// WebPush sends notifications through the browser vendors' push services.
type WebPush struct {
	cfg    VAPIDConfig
	client webpush.HTTPClient
}

// NewWebPush constructs a provider. A nil client uses http.DefaultClient.
func NewWebPush(cfg VAPIDConfig, client webpush.HTTPClient) (*WebPush, error) {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, errors.New("notify: vapid keys are required")
	}
	if cfg.Subscriber == "" {
		return nil, errors.New("notify: vapid subscriber is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &WebPush{cfg: cfg, client: client}, nil
}

// Send delivers body to sub. 404 and 410 responses map to ErrGone.
func (p *WebPush) Send(ctx context.Context, sub Subscription, body []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		HTTPClient:      p.client,
		Subscriber:      p.cfg.Subscriber,
		VAPIDPublicKey:  p.cfg.PublicKey,
		VAPIDPrivateKey: p.cfg.PrivateKey,
		TTL:             int(p.cfg.TTL / time.Second),
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("notify: push send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrGone
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("notify: push provider returned %d", resp.StatusCode)
	}
	return nil
}
