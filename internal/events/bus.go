// Package events provides simple in-process pub/sub for report
// lifecycle notifications.
package events

import (
	"sync"

	"civic_reports/internal/report"
)

// Event kinds published on the bus.
const (
	KindReportCreated  = "report_created"
	KindReportEnriched = "report_enriched"
	KindStatusChanged  = "status_changed"
)

// Event describes one report lifecycle transition.
type Event struct {
	Kind   string
	Report report.Report
}

// Bus fans events out to subscribers. Slow subscribers drop events
// rather than blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
