// Package notify is the notification-dispatcher client: one fire-and-forget
// POST per alert. Callers log failures and move on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/clearwave/callsig/internal/core/port"
)

type Dispatcher struct {
	url    string
	client *http.Client
}

func NewDispatcher(url string) *Dispatcher {
	return &Dispatcher{
		url: url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type deliveryRequest struct {
	Target string         `json:"target"`
	Alert  port.CallAlert `json:"alert"`
}

func (d *Dispatcher) Send(ctx context.Context, target string, alert port.CallAlert) error {
	body, err := json.Marshal(deliveryRequest{Target: target, Alert: alert})
	if err != nil {
		return errors.Wrap(err, "marshal alert")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build alert request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "deliver alert")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return errors.Errorf("dispatcher returned %s", resp.Status)
	}
	return nil
}
