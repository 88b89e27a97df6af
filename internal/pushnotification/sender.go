// Package pushnotification delivers Web Push alerts for tasks that need a
// human.
package pushnotification

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-json-experiment/json"
	"github.com/sourcegraph/conc/pool"

	"github.com/prism/prism/internal/config"
	"github.com/prism/prism/internal/pushsubscription"
)

const (
	ttlSeconds  = 86400
	maxInFlight = 8
)

type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Notifier fans a payload out to every registered browser.
type Notifier interface {
	SendToAll(ctx context.Context, p *Payload) int
}

type Sender struct {
	vapid *config.VAPIDEnv
	repo  pushsubscription.Repository
}

func NewSender(vapid *config.VAPIDEnv, repo pushsubscription.Repository) *Sender {
	return &Sender{vapid: vapid, repo: repo}
}

// SendToAll returns the number of subscriptions that accepted p.
// Subscriptions the push service reports as gone are removed.
func (s *Sender) SendToAll(ctx context.Context, p *Payload) int {
	if !s.vapid.Configured() {
		slog.WarnContext(ctx, "push notification: VAPID keys not configured, skipping")
		return 0
	}

	subs, err := s.repo.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to list subscriptions", "error", err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}

	data, err := json.Marshal(p)
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to marshal payload", "error", err)
		return 0
	}

	results := pool.NewWithResults[bool]().WithMaxGoroutines(maxInFlight)
	for _, sub := range subs {
		results.Go(func() bool {
			return s.send(ctx, sub, data)
		})
	}
	sent := 0
	for _, ok := range results.Wait() {
		if ok {
			sent++
		}
	}
	return sent
}

// send gives webpush its own copy of data: it pads the message in place,
// and sends run concurrently.
func (s *Sender) send(ctx context.Context, sub *pushsubscription.Subscription, data []byte) bool {
	resp, err := webpush.SendNotificationWithContext(ctx, bytes.Clone(data), &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		Subscriber:      s.vapid.VAPIDContact,
		VAPIDPublicKey:  s.vapid.VAPIDPublicKey,
		VAPIDPrivateKey: s.vapid.VAPIDPrivateKey,
		TTL:             ttlSeconds,
	})
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to send", "endpoint", sub.Endpoint, "error", err)
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		slog.InfoContext(ctx, "push notification: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.repo.Delete(ctx, sub.ID); err != nil {
			slog.ErrorContext(ctx, "push notification: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
		return false
	case resp.StatusCode >= 400:
		slog.WarnContext(ctx, "push notification: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
		return false
	}
	return true
}
