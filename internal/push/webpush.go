package push

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"streamwatch/internal/models"
)

// Payload is the notification document delivered to the client push runtime.
// The service worker renders it as an OS notification and routes clicks to
// the URL.
type Payload struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Icon               string   `json:"icon"`
	Badge              string   `json:"badge"`
	Image              string   `json:"image,omitempty"`
	URL                string   `json:"url"`
	Tag                string   `json:"tag"`
	RequireInteraction bool     `json:"requireInteraction"`
	Actions            []Action `json:"actions"`
}

// Action is a notification button
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// StatusError reports a push service response outside the 2xx range
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// IsGone reports whether the delivery failure means the endpoint is
// permanently dead and the subscription should be pruned.
func IsGone(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusGone
}

// Sender delivers an encrypted payload to a single subscription endpoint
type Sender interface {
	Send(sub *models.PushSubscription, payload []byte) error
}

// WebPushSender sends notifications over the Web Push protocol with VAPID
// authentication.
type WebPushSender struct {
	publicKey  string
	privateKey string
	subject    string
	ttl        int
}

// NewWebPushSender creates a WebPushSender from a VAPID key pair
func NewWebPushSender(publicKey, privateKey, subject string) *WebPushSender {
	return &WebPushSender{
		publicKey:  publicKey,
		privateKey: privateKey,
		subject:    subject,
		ttl:        60 * 60 * 24, // push services may hold a payload for a day
	}
}

// Send encrypts the payload with the subscription's keys and posts it to the
// endpoint. Non-2xx responses become a StatusError so callers can tell dead
// endpoints (404/410) apart from transient failures.
func (s *WebPushSender) Send(sub *models.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subject,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             s.ttl,
	})
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
