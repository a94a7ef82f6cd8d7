// Package metrics tracks pipeline counters for the ops status endpoint.
package metrics

import "sync/atomic"

var (
	callsReceived      int64
	recordingsReceived int64
	reportsEnriched    int64
	enrichmentFailed   int64
	geocodeFallbacks   int64
	reportsPersisted   int64
	alertsSent         int64
)

func IncCallReceived()      { atomic.AddInt64(&callsReceived, 1) }
func IncRecordingReceived() { atomic.AddInt64(&recordingsReceived, 1) }
func IncEnriched()          { atomic.AddInt64(&reportsEnriched, 1) }
func IncEnrichmentFailed()  { atomic.AddInt64(&enrichmentFailed, 1) }
func IncGeocodeFallback()   { atomic.AddInt64(&geocodeFallbacks, 1) }
func IncPersisted()         { atomic.AddInt64(&reportsPersisted, 1) }
func IncAlertSent()         { atomic.AddInt64(&alertsSent, 1) }

func Snapshot() map[string]int64 {
	return map[string]int64{
		"calls_received":      atomic.LoadInt64(&callsReceived),
		"recordings_received": atomic.LoadInt64(&recordingsReceived),
		"reports_enriched":    atomic.LoadInt64(&reportsEnriched),
		"enrichment_failed":   atomic.LoadInt64(&enrichmentFailed),
		"geocode_fallbacks":   atomic.LoadInt64(&geocodeFallbacks),
		"reports_persisted":   atomic.LoadInt64(&reportsPersisted),
		"alerts_sent":         atomic.LoadInt64(&alertsSent),
	}
}
