package intake

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic_reports/internal/config"
	"civic_reports/internal/events"
	"civic_reports/internal/extract"
	"civic_reports/internal/geocode"
	"civic_reports/internal/logger"
	"civic_reports/internal/queue"
	"civic_reports/internal/report"
)

type fakeFetcher struct {
	audio []byte
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.audio, f.err
}

type fakeSpeech struct {
	text string
	err  error
}

func (f *fakeSpeech) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	return f.text, f.err
}

type fakeExtractor struct {
	fields extract.Fields
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, transcript string) (extract.Fields, error) {
	return f.fields, f.err
}

type fakeGeocoder struct {
	res   geocode.Result
	err   error
	calls int
}

func (f *fakeGeocoder) Geocode(ctx context.Context, address string) (geocode.Result, error) {
	f.calls++
	return f.res, f.err
}

type fakePersister struct {
	rows []report.Report
	err  error
}

func (f *fakePersister) Persist(ctx context.Context, r report.Report) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, r)
	return nil
}

func testConfig(mode string) config.Config {
	return config.Config{
		TranscriptionMode: mode,
		RecordMaxSeconds:  30,
		RecordFinishKey:   "#",
		GreetingPrompt:    "Please describe the issue.",
		ThankYouPrompt:    "Thank you. Goodbye.",
		FallbackLat:       38.5449,
		FallbackLng:       -121.7405,
		WorkerCount:       1,
		QueueSize:         8,
		JobTimeoutSec:     10,
	}
}

func newTestOrchestrator(t *testing.T, cfg config.Config, d Deps) (*Orchestrator, *report.Store, *events.Bus) {
	t.Helper()
	log := logger.New()
	st := report.NewStore()
	bus := events.NewBus()
	q := queue.New(cfg.QueueSize, cfg.WorkerCount, cfg.JobTimeout(), log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	q.Start(ctx)

	d.Store = st
	d.Bus = bus
	d.Queue = q
	d.Log = log
	if d.Fetcher == nil {
		d.Fetcher = &fakeFetcher{audio: []byte("audio")}
	}
	if d.Speech == nil {
		d.Speech = &fakeSpeech{text: "nothing"}
	}
	if d.Extractor == nil {
		d.Extractor = &fakeExtractor{}
	}
	if d.Geocoder == nil {
		d.Geocoder = &fakeGeocoder{}
	}
	return New(cfg, d), st, bus
}

func waitForEvent(t *testing.T, ch <-chan events.Event, kind string) events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestIncomingCallRendersGreeting(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testConfig(config.ModeSelf), Deps{})
	body, err := o.HandleIncomingCall("CA1", "+15551234567")
	require.NoError(t, err)
	xml := string(body)
	assert.Contains(t, xml, "Please describe the issue.")
	assert.Contains(t, xml, `maxLength="30"`)
	assert.Contains(t, xml, `action="/process_recording"`)
	assert.NotContains(t, xml, "transcribeCallback")
}

func TestIncomingCallTelephonyModeRequestsTranscription(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testConfig(config.ModeTelephony), Deps{})
	body, err := o.HandleIncomingCall("CA1", "+15551234567")
	require.NoError(t, err)
	assert.Contains(t, string(body), `transcribeCallback="/transcription_complete"`)
}

func TestRecordingFinishedCreatesPlaceholderReport(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, testConfig(config.ModeTelephony), Deps{})

	body, err := o.HandleRecordingFinished("CA1", "+15551234567", "https://api.example.com/rec.mp3")
	require.NoError(t, err)
	assert.Contains(t, string(body), "Thank you. Goodbye.")
	assert.Contains(t, string(body), "<Hangup>")

	r, err := st.Find("CA1")
	require.NoError(t, err)
	assert.Equal(t, report.TranscriptPending, r.Transcription)
	assert.Equal(t, report.LocationPending, r.Location)
	assert.Equal(t, report.StatusNew, r.Status)
	assert.Equal(t, report.PriorityMedium, r.Priority)
	assert.Nil(t, r.Coordinates)
}

func TestEnrichmentHappyPath(t *testing.T) {
	persister := &fakePersister{}
	o, st, bus := newTestOrchestrator(t, testConfig(config.ModeSelf), Deps{
		Speech:    &fakeSpeech{text: "There's a dangerous pothole at 123 Main Street"},
		Extractor: &fakeExtractor{fields: extract.Fields{Address: "123 Main Street", IncidentType: "pothole", Found: true}},
		Geocoder:  &fakeGeocoder{res: geocode.Result{Lat: 38.5449, Lng: -121.7405}},
		Persister: persister,
	})
	ch := bus.Subscribe()

	_, err := o.HandleRecordingFinished("CA1", "+15551234567", "https://api.example.com/rec.mp3")
	require.NoError(t, err)
	waitForEvent(t, ch, events.KindReportEnriched)

	r, err := st.Find("CA1")
	require.NoError(t, err)
	assert.Equal(t, "There's a dangerous pothole at 123 Main Street", r.Transcription)
	assert.Equal(t, "123 Main Street", r.Location)
	assert.Equal(t, "pothole", r.IncidentType)
	assert.Equal(t, report.PriorityUrgent, r.Priority)
	require.NotNil(t, r.Coordinates)
	assert.InDelta(t, 38.5449, r.Coordinates.Lat, 1e-9)
	// Status is untouched by enrichment.
	assert.Equal(t, report.StatusNew, r.Status)
	require.Len(t, persister.rows, 1)
}

func TestTranscriptionFailureFinalizesWithSentinels(t *testing.T) {
	o, st, bus := newTestOrchestrator(t, testConfig(config.ModeSelf), Deps{
		Speech: &fakeSpeech{err: errors.New("speech api status 500")},
	})
	ch := bus.Subscribe()

	_, err := o.HandleRecordingFinished("CA1", "+15551234567", "https://api.example.com/rec.mp3")
	require.NoError(t, err)
	waitForEvent(t, ch, events.KindReportEnriched)

	r, err := st.Find("CA1")
	require.NoError(t, err)
	assert.Equal(t, report.TranscriptFailed, r.Transcription)
	assert.Equal(t, report.LocationUnknown, r.Location)
	assert.Equal(t, report.IncidentUnknown, r.IncidentType)
	assert.Nil(t, r.Coordinates)
}

func TestNoAddressSkipsGeocodeAndPersist(t *testing.T) {
	geo := &fakeGeocoder{}
	persister := &fakePersister{}
	o, st, bus := newTestOrchestrator(t, testConfig(config.ModeSelf), Deps{
		Speech:    &fakeSpeech{text: "everything is terrible"},
		Extractor: &fakeExtractor{fields: extract.Fields{}},
		Geocoder:  geo,
		Persister: persister,
	})
	ch := bus.Subscribe()

	_, err := o.HandleRecordingFinished("CA1", "+15551234567", "https://api.example.com/rec.mp3")
	require.NoError(t, err)
	waitForEvent(t, ch, events.KindReportEnriched)

	r, err := st.Find("CA1")
	require.NoError(t, err)
	assert.Equal(t, report.LocationUnknown, r.Location)
	assert.Equal(t, report.IncidentUnknown, r.IncidentType)
	assert.Nil(t, r.Coordinates)
	assert.Zero(t, geo.calls)
	assert.Empty(t, persister.rows)
}

func TestGeocodeFailureUsesFallbackCentroid(t *testing.T) {
	persister := &fakePersister{}
	o, st, bus := newTestOrchestrator(t, testConfig(config.ModeSelf), Deps{
		Speech:    &fakeSpeech{text: "pothole at 999 Nowhere Lane"},
		Extractor: &fakeExtractor{fields: extract.Fields{Address: "999 Nowhere Lane", IncidentType: "pothole", Found: true}},
		Geocoder:  &fakeGeocoder{err: errors.New("geocoding failed: ZERO_RESULTS")},
		Persister: persister,
	})
	ch := bus.Subscribe()

	_, err := o.HandleRecordingFinished("CA1", "+15551234567", "https://api.example.com/rec.mp3")
	require.NoError(t, err)
	waitForEvent(t, ch, events.KindReportEnriched)

	r, err := st.Find("CA1")
	require.NoError(t, err)
	assert.Equal(t, "999 Nowhere Lane", r.Location)
	require.NotNil(t, r.Coordinates)
	assert.InDelta(t, 38.5449, r.Coordinates.Lat, 1e-9)
	assert.InDelta(t, -121.7405, r.Coordinates.Lng, 1e-9)
	// Fallback coordinates still publish to the dashboard datastore.
	require.Len(t, persister.rows, 1)
}

func TestPersistFailureIsLogOnly(t *testing.T) {
	o, st, bus := newTestOrchestrator(t, testConfig(config.ModeSelf), Deps{
		Speech:    &fakeSpeech{text: "pothole at 123 Main Street"},
		Extractor: &fakeExtractor{fields: extract.Fields{Address: "123 Main Street", IncidentType: "pothole", Found: true}},
		Geocoder:  &fakeGeocoder{res: geocode.Result{Lat: 1, Lng: 2}},
		Persister: &fakePersister{err: errors.New("datastore status 401")},
	})
	ch := bus.Subscribe()

	_, err := o.HandleRecordingFinished("CA1", "+15551234567", "https://api.example.com/rec.mp3")
	require.NoError(t, err)
	waitForEvent(t, ch, events.KindReportEnriched)

	r, err := st.Find("CA1")
	require.NoError(t, err)
	assert.Equal(t, "123 Main Street", r.Location)
	require.NotNil(t, r.Coordinates)
}

func TestTranscriptionCallbackEnrichesTelephonyReport(t *testing.T) {
	o, st, bus := newTestOrchestrator(t, testConfig(config.ModeTelephony), Deps{
		Extractor: &fakeExtractor{fields: extract.Fields{Address: "456 Oak Ave", IncidentType: "broken streetlight", Found: true}},
		Geocoder:  &fakeGeocoder{res: geocode.Result{Lat: 3, Lng: 4}},
	})
	ch := bus.Subscribe()

	_, err := o.HandleRecordingFinished("CA1", "+15551234567", "https://api.example.com/rec.mp3")
	require.NoError(t, err)
	require.NoError(t, o.HandleTranscription("CA1", "+15551234567", "https://api.example.com/rec.mp3", "broken streetlight at 456 Oak Ave"))
	waitForEvent(t, ch, events.KindReportEnriched)

	r, err := st.Find("CA1")
	require.NoError(t, err)
	assert.Equal(t, "broken streetlight at 456 Oak Ave", r.Transcription)
	assert.Equal(t, "456 Oak Ave", r.Location)
	assert.Equal(t, report.PriorityHigh, r.Priority)
}

func TestTranscriptionCallbackForUnknownCallCreatesReport(t *testing.T) {
	o, st, bus := newTestOrchestrator(t, testConfig(config.ModeTelephony), Deps{
		Extractor: &fakeExtractor{fields: extract.Fields{}},
	})
	ch := bus.Subscribe()

	require.NoError(t, o.HandleTranscription("CA9", "+15550001111", "https://api.example.com/rec.mp3", "some text"))
	waitForEvent(t, ch, events.KindReportEnriched)

	_, err := st.Find("CA9")
	require.NoError(t, err)
}

func TestEmptyTranscriptionCallbackFinalizes(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, testConfig(config.ModeTelephony), Deps{})
	_, err := o.HandleRecordingFinished("CA1", "+15551234567", "https://api.example.com/rec.mp3")
	require.NoError(t, err)
	require.NoError(t, o.HandleTranscription("CA1", "+15551234567", "https://api.example.com/rec.mp3", "   "))

	r, err := st.Find("CA1")
	require.NoError(t, err)
	assert.Equal(t, report.TranscriptFailed, r.Transcription)
}

func TestUpdateStatus(t *testing.T) {
	o, st, bus := newTestOrchestrator(t, testConfig(config.ModeTelephony), Deps{})
	ch := bus.Subscribe()
	_, err := o.HandleRecordingFinished("CA1", "+15551234567", "https://api.example.com/rec.mp3")
	require.NoError(t, err)

	r, err := o.UpdateStatus("CA1", report.StatusInReview)
	require.NoError(t, err)
	assert.Equal(t, report.StatusInReview, r.Status)
	waitForEvent(t, ch, events.KindStatusChanged)

	_, err = o.UpdateStatus("CA1", "bogus")
	assert.ErrorContains(t, err, "unknown status")
	r, err = st.Find("CA1")
	require.NoError(t, err)
	assert.Equal(t, report.StatusInReview, r.Status)

	_, err = o.UpdateStatus("missing", report.StatusResolved)
	assert.True(t, errors.Is(err, report.ErrNotFound))
}

func TestLocalRecordingIsDeduplicated(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/call-1.mp3"
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))

	o, st, bus := newTestOrchestrator(t, testConfig(config.ModeSelf), Deps{
		Speech:    &fakeSpeech{text: "pothole somewhere"},
		Extractor: &fakeExtractor{fields: extract.Fields{}},
	})
	ch := bus.Subscribe()

	require.NoError(t, o.HandleLocalRecording("call-1.mp3", path))
	waitForEvent(t, ch, events.KindReportEnriched)
	require.NoError(t, o.HandleLocalRecording("call-1.mp3", path))

	assert.Equal(t, 1, st.Len())
	r, err := st.Find("call-1.mp3")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(r.RecordingURL, "call-1.mp3"))
}
