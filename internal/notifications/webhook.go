package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/kjannette/curvescan-backend/internal/events"
	"github.com/kjannette/curvescan-backend/internal/retry"
)

type Sender struct {
	webhookURL  string
	serviceName string
	httpClient  *http.Client
	policy      retry.Policy
}

func NewSender(webhookURL, serviceName string) *Sender {
	if serviceName == "" {
		serviceName = "CurvescanIndexer"
	}
	return &Sender{
		webhookURL:  webhookURL,
		serviceName: serviceName,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		policy: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
	}
}

func (s *Sender) Send(msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.serviceName, msg)
	fmt.Printf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), formatted)

	if s.webhookURL == "" {
		return
	}

	payload := s.formatPayload(formatted)
	body, err := json.Marshal(payload)
	if err != nil {
		fmt.Printf("[CHAT ERROR] marshal: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := retry.DoHTTP(ctx, s.httpClient, s.policy, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		fmt.Printf("[CHAT ERROR] Failed to send notification after retries: %v\n", err)
		return
	}
	resp.Body.Close()
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.serviceName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.serviceName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}

// Listen consumes the event bus and forwards whale trades and phase changes
// until the subscription is cancelled. Run it on its own goroutine.
func (s *Sender) Listen(ctx context.Context, bus *events.Bus) {
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if msg := formatEvent(ev); msg != "" {
				s.Send(msg)
			}
		}
	}
}

// formatEvent renders the alert line for an event, or "" for events that do
// not notify (plain trades).
func formatEvent(ev events.Event) string {
	switch ev.Type {
	case events.TypeWhaleAlert:
		if ev.Trade == nil {
			return ""
		}
		vol := new(big.Int)
		if ev.Volume != nil {
			vol = ev.Volume
		}
		return fmt.Sprintf("WHALE %s: %s quote units by %s (project %d, tx %s)",
			ev.Trade.Side, vol, ev.Trade.Trader, ev.ProjectID, ev.Trade.TxHash)
	case events.TypePhaseChange:
		return fmt.Sprintf("GRADUATION: project %d moved to %s market", ev.ProjectID, ev.Phase)
	default:
		return ""
	}
}
