package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic_reports/internal/events"
	"civic_reports/internal/logger"
	"civic_reports/internal/report"
)

func TestSendPostsBotMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := New(srv.URL, "bot-1", logger.New())
	require.NoError(t, n.Send(context.Background(), "URGENT report CA1"))
	assert.Equal(t, "bot-1", got["bot_id"])
	assert.Equal(t, "URGENT report CA1", got["text"])
}

func TestSendDisabledWithoutBotID(t *testing.T) {
	n := New("", "", logger.New())
	assert.NoError(t, n.Send(context.Background(), "ignored"))
}

func TestRunAlertsOnlyOnUrgentEnrichment(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	n := New(srv.URL, "bot-1", logger.New())
	bus := events.NewBus()
	ch := bus.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx, ch)

	urgent := report.New("CA1", "+15551234567", "https://example.com/rec.mp3", time.Now())
	urgent.Priority = report.PriorityUrgent
	medium := report.New("CA2", "+15551234567", "https://example.com/rec.mp3", time.Now())

	bus.Publish(events.Event{Kind: events.KindReportCreated, Report: urgent})
	bus.Publish(events.Event{Kind: events.KindReportEnriched, Report: medium})
	bus.Publish(events.Event{Kind: events.KindReportEnriched, Report: urgent})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
