// Package notify pushes urgent report alerts to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"civic_reports/internal/events"
	"civic_reports/internal/logger"
	"civic_reports/internal/metrics"
	"civic_reports/internal/report"
)

// Notifier posts alert messages to a bot webhook if configured.
type Notifier struct {
	client *http.Client
	url    string
	botID  string
	log    *logger.Logger
}

func New(url, botID string, log *logger.Logger) *Notifier {
	return &Notifier{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		botID:  botID,
		log:    log,
	}
}

// Run consumes bus events until the context is cancelled, alerting on
// urgent reports as they finish enrichment.
func (n *Notifier) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind != events.KindReportEnriched || ev.Report.Priority != report.PriorityUrgent {
				continue
			}
			if err := n.Send(ctx, formatAlert(ev.Report)); err != nil {
				n.log.WithField("report", ev.Report.ID).Warnf("alert failed: %v", err)
				continue
			}
			metrics.IncAlertSent()
		}
	}
}

// Send posts one alert message. A missing bot ID disables alerting.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if n.botID == "" || n.url == "" {
		return nil
	}
	payload := map[string]string{"text": text, "bot_id": n.botID}
	buf, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func formatAlert(r report.Report) string {
	return fmt.Sprintf("URGENT report %s: %s at %s (caller %s)",
		r.ID, r.IncidentType, r.Location, r.CallerNumber)
}
