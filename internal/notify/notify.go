// Package notify delivers alert notifications to every enabled Alerter
// resource, fanning out over whichever transport the Alerter's config
// names (spec.md §4.9's "fans out... to every enabled Alerter in
// parallel"). Slack uses github.com/slack-go/slack's incoming-webhook
// helper; generic webhook and Discord (a plain JSON POST endpoint, same
// shape as a generic webhook) share one stdlib net/http path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
	"github.com/slack-go/slack"
)

// Event is one alert transition worth notifying about: either a newly
// opened alert or one that just resolved.
type Event struct {
	Alert    models.Alert
	Resolved bool
}

func (e Event) text() string {
	verb := "opened"
	if e.Resolved {
		verb = "resolved"
	}
	return fmt.Sprintf("[%s] %s alert %s on %s/%s", e.Alert.Severity, verb, e.Alert.Variant, e.Alert.Target.Type, e.Alert.Target.Id)
}

// Alerters is the slice of store.Collection the dispatcher needs:
// listing every configured Alerter resource. *store.Collection[models.AlerterConfig,
// models.AlerterInfo] satisfies this directly.
type Alerters interface {
	List(q store.ListQuery) ([]models.Alerter, error)
}

// HTTPDispatcher sends Event notifications to every enabled Alerter
// over its configured transport. Build one with New, which sets a 10s
// http.Client timeout; both fields must be non-nil.
type HTTPDispatcher struct {
	Alerters Alerters
	Client   *http.Client
}

func New(alerters Alerters) *HTTPDispatcher {
	return &HTTPDispatcher{Alerters: alerters, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Send delivers ev to every enabled Alerter concurrently. Each
// alerter's error is returned keyed by the alerter's name so callers
// can log without aborting the others; a nil map means every delivery
// succeeded (or there were no enabled alerters).
func (d *HTTPDispatcher) Send(ctx context.Context, ev Event) map[string]error {
	alerters, err := d.Alerters.List(store.ListQuery{})
	if err != nil {
		return map[string]error{"list_alerters": err}
	}

	var (
		mu     sync.Mutex
		failed = map[string]error{}
		wg     sync.WaitGroup
	)
	for _, a := range alerters {
		if !a.Config.Enabled {
			continue
		}
		a := a
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.deliver(ctx, a.Config, ev); err != nil {
				mu.Lock()
				failed[a.Name] = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(failed) == 0 {
		return nil
	}
	return failed
}

func (d *HTTPDispatcher) deliver(ctx context.Context, cfg models.AlerterConfig, ev Event) error {
	switch {
	case cfg.Slack != nil:
		return d.deliverSlack(*cfg.Slack, ev)
	case cfg.Webhook != nil:
		return d.deliverWebhook(ctx, cfg.Webhook.Url, ev)
	case cfg.Discord != nil:
		return d.deliverWebhook(ctx, cfg.Discord.Url, ev)
	default:
		return rifterr.New(rifterr.KindInvalidConfig, "alerter has no transport configured")
	}
}

func (d *HTTPDispatcher) deliverSlack(cfg models.AlerterSlack, ev Event) error {
	msg := &slack.WebhookMessage{Channel: cfg.Channel, Text: ev.text()}
	if err := slack.PostWebhook(cfg.Url, msg); err != nil {
		return rifterr.Wrap(rifterr.KindUpstream, err, "posting slack alert")
	}
	return nil
}

type webhookPayload struct {
	Content string `json:"content"` // Discord's field name; generic webhooks ignore unknown keys
	Text    string `json:"text"`
}

func (d *HTTPDispatcher) deliverWebhook(ctx context.Context, url string, ev Event) error {
	body, err := json.Marshal(webhookPayload{Content: ev.text(), Text: ev.text()})
	if err != nil {
		return rifterr.Wrap(rifterr.KindInternal, err, "marshal webhook payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return rifterr.Wrap(rifterr.KindInternal, err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return rifterr.Wrap(rifterr.KindUpstream, err, "posting webhook alert")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rifterr.New(rifterr.KindUpstream, "webhook alerter returned %d", resp.StatusCode)
	}
	return nil
}
