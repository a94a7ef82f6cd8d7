// Package intake coordinates the report lifecycle: webhook events create
// reports immediately, and a worker pool fills in transcript, location,
// priority, and coordinates afterwards. Callers never wait on enrichment.
package intake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"civic_reports/internal/archive"
	"civic_reports/internal/classify"
	"civic_reports/internal/config"
	"civic_reports/internal/events"
	"civic_reports/internal/extract"
	"civic_reports/internal/geocode"
	"civic_reports/internal/logger"
	"civic_reports/internal/metrics"
	"civic_reports/internal/persist"
	"civic_reports/internal/queue"
	"civic_reports/internal/report"
	"civic_reports/internal/transcribe"
	"civic_reports/internal/twiml"
)

// ErrQueueFull is returned when the enrichment queue rejects a job.
var ErrQueueFull = errors.New("enrichment queue full")

// Orchestrator drives report creation and enrichment.
type Orchestrator struct {
	cfg     config.Config
	store   *report.Store
	archive *archive.Archive
	queue   *queue.Queue
	bus     *events.Bus
	log     *logger.Logger

	fetcher   transcribe.Fetcher
	speech    transcribe.Transcriber
	extractor extract.Extractor
	geocoder  geocode.Geocoder
	persister persist.Persister
}

// Deps bundles the orchestrator's collaborators. Archive may be nil; the
// pipeline treats history writes as log-only either way.
type Deps struct {
	Store     *report.Store
	Archive   *archive.Archive
	Queue     *queue.Queue
	Bus       *events.Bus
	Log       *logger.Logger
	Fetcher   transcribe.Fetcher
	Speech    transcribe.Transcriber
	Extractor extract.Extractor
	Geocoder  geocode.Geocoder
	Persister persist.Persister
}

func New(cfg config.Config, d Deps) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     d.Store,
		archive:   d.Archive,
		queue:     d.Queue,
		bus:       d.Bus,
		log:       d.Log,
		fetcher:   d.Fetcher,
		speech:    d.Speech,
		extractor: d.Extractor,
		geocoder:  d.Geocoder,
		persister: d.Persister,
	}
}

// HandleIncomingCall answers a new call with the greeting and recording
// instructions. No report exists yet; that happens when the recording
// finishes.
func (o *Orchestrator) HandleIncomingCall(callSID, from string) ([]byte, error) {
	metrics.IncCallReceived()
	o.log.WithFields(map[string]interface{}{"call": callSID, "from": from}).Info("incoming call")

	opts := twiml.RecordOptions{
		Action:     "/process_recording",
		MaxSeconds: o.cfg.RecordMaxSeconds,
		FinishKey:  o.cfg.RecordFinishKey,
	}
	if o.cfg.TranscriptionMode == config.ModeTelephony {
		opts.Transcribe = true
		opts.TranscribeCallback = "/transcription_complete"
	}
	return twiml.Render(twiml.Greeting(o.cfg.GreetingPrompt, opts))
}

// HandleRecordingFinished creates the report with placeholder fields and,
// when transcripts are produced locally, schedules enrichment. The reply is
// the thank-you TwiML either way; enrichment failures must never reach the
// caller.
func (o *Orchestrator) HandleRecordingFinished(callSID, from, recordingURL string) ([]byte, error) {
	metrics.IncRecordingReceived()
	r := report.New(callSID, from, recordingURL, config.Now())
	o.store.Insert(r)
	o.recordStage(r.ID, archive.StageReceived, archive.OutcomeOK, "")
	o.archiveReport(r)
	o.bus.Publish(events.Event{Kind: events.KindReportCreated, Report: r})
	o.log.WithField("report", r.ID).Info("report created")

	if o.cfg.TranscriptionMode == config.ModeSelf {
		if !o.enqueueEnrichment(r.ID, "webhook", func(ctx context.Context) error {
			return o.enrichFromRecording(ctx, r.ID)
		}) {
			o.log.WithField("report", r.ID).Warn("enrichment not scheduled")
		}
	}
	return twiml.Render(twiml.Goodbye(o.cfg.ThankYouPrompt))
}

// HandleTranscription receives provider-produced transcript text and
// schedules the downstream enrichment. A callback for an unknown call still
// creates a report; webhook ordering is not guaranteed.
func (o *Orchestrator) HandleTranscription(callSID, from, recordingURL, text string) error {
	if _, err := o.store.Find(callSID); errors.Is(err, report.ErrNotFound) {
		r := report.New(callSID, from, recordingURL, config.Now())
		o.store.Insert(r)
		o.recordStage(callSID, archive.StageReceived, archive.OutcomeOK, "created by transcription callback")
		o.bus.Publish(events.Event{Kind: events.KindReportCreated, Report: r})
	}

	text = strings.TrimSpace(text)
	if text == "" {
		o.failTranscription(callSID, "empty transcription callback")
		return nil
	}
	if !o.enqueueEnrichment(callSID, "webhook", func(ctx context.Context) error {
		return o.enrichFromTranscript(ctx, callSID, text)
	}) {
		return ErrQueueFull
	}
	return nil
}

// HandleLocalRecording creates a report for an audio file that appeared in
// the recordings directory and schedules full enrichment.
func (o *Orchestrator) HandleLocalRecording(callID, path string) error {
	metrics.IncRecordingReceived()
	if _, err := o.store.Find(callID); err == nil {
		return nil
	}
	r := report.New(callID, "", path, config.Now())
	o.store.Insert(r)
	o.recordStage(r.ID, archive.StageReceived, archive.OutcomeOK, "local file "+filepath.Base(path))
	o.archiveReport(r)
	o.bus.Publish(events.Event{Kind: events.KindReportCreated, Report: r})
	if !o.enqueueEnrichment(r.ID, "watcher", func(ctx context.Context) error {
		return o.enrichFromRecording(ctx, r.ID)
	}) {
		return ErrQueueFull
	}
	return nil
}

// UpdateStatus sets the workflow status of a report.
func (o *Orchestrator) UpdateStatus(id, status string) (report.Report, error) {
	if !report.KnownStatus(status) {
		return report.Report{}, fmt.Errorf("unknown status %q", status)
	}
	r, err := o.store.Update(id, func(r *report.Report) {
		r.Status = status
	})
	if err != nil {
		return report.Report{}, err
	}
	o.archiveReport(r)
	o.bus.Publish(events.Event{Kind: events.KindStatusChanged, Report: r})
	return r, nil
}

func (o *Orchestrator) enqueueEnrichment(id, source string, work func(context.Context) error) bool {
	return o.queue.Enqueue(queue.Job{
		ID:     id,
		Source: source,
		Work:   work,
		OnFinish: func(err error) {
			if err != nil {
				metrics.IncEnrichmentFailed()
			}
		},
	})
}

// enrichFromRecording downloads and transcribes the recording, then runs the
// transcript pipeline. Transcription failure finalizes the report with
// failure sentinels instead of leaving placeholders forever.
func (o *Orchestrator) enrichFromRecording(ctx context.Context, id string) error {
	r, err := o.store.Find(id)
	if err != nil {
		return err
	}
	audio, err := o.loadAudio(ctx, r.RecordingURL)
	if err != nil {
		o.failTranscription(id, err.Error())
		return fmt.Errorf("fetch recording: %w", err)
	}
	text, err := o.speech.Transcribe(ctx, audio, filepath.Base(r.RecordingURL))
	if err != nil {
		o.failTranscription(id, err.Error())
		return fmt.Errorf("transcribe: %w", err)
	}
	o.recordStage(id, archive.StageTranscribe, archive.OutcomeOK, "")
	return o.enrichFromTranscript(ctx, id, text)
}

// enrichFromTranscript runs classification, extraction, geocoding, and
// publication for a transcript, then commits the finished report in one
// store update.
func (o *Orchestrator) enrichFromTranscript(ctx context.Context, id, text string) error {
	priority := classify.Priority(text)

	location := report.LocationUnknown
	incident := report.IncidentUnknown
	var coords *report.Coordinates

	fields, err := o.extractor.Extract(ctx, text)
	if err != nil {
		o.recordStage(id, archive.StageExtract, archive.OutcomeFailed, err.Error())
		o.log.WithField("report", id).Warnf("extraction failed: %v", err)
	} else if !fields.Found {
		o.recordStage(id, archive.StageExtract, archive.OutcomeOK, "no address found")
	} else {
		o.recordStage(id, archive.StageExtract, archive.OutcomeOK, "")
		location = fields.Address
		incident = fields.IncidentType

		res, err := o.geocoder.Geocode(ctx, fields.Address)
		if err != nil {
			o.recordStage(id, archive.StageGeocode, archive.OutcomeFailed, err.Error())
			o.log.WithField("report", id).Warnf("geocode failed, using fallback centroid: %v", err)
			metrics.IncGeocodeFallback()
			coords = &report.Coordinates{Lat: o.cfg.FallbackLat, Lng: o.cfg.FallbackLng}
		} else {
			o.recordStage(id, archive.StageGeocode, archive.OutcomeOK, "")
			coords = &report.Coordinates{Lat: res.Lat, Lng: res.Lng}
		}
	}

	r, err := o.store.Update(id, func(r *report.Report) {
		r.Transcription = text
		r.Location = location
		r.IncidentType = incident
		r.Priority = priority
		r.Coordinates = coords
	})
	if err != nil {
		return err
	}

	if coords == nil {
		o.recordStage(id, archive.StagePersist, archive.OutcomeSkipped, "no coordinates")
	} else if o.persister != nil {
		if err := o.persister.Persist(ctx, r); err != nil {
			o.recordStage(id, archive.StagePersist, archive.OutcomeFailed, err.Error())
			o.log.WithField("report", id).Warnf("persist failed: %v", err)
		} else {
			o.recordStage(id, archive.StagePersist, archive.OutcomeOK, "")
			metrics.IncPersisted()
		}
	}

	o.archiveReport(r)
	o.recordStage(id, archive.StageDone, archive.OutcomeOK, "")
	metrics.IncEnriched()
	o.bus.Publish(events.Event{Kind: events.KindReportEnriched, Report: r})
	o.log.WithFields(map[string]interface{}{
		"report":   id,
		"priority": r.Priority,
		"incident": r.IncidentType,
	}).Info("report enriched")
	return nil
}

// failTranscription finalizes a report whose transcript could not be
// produced. The report stays visible on the dashboard with sentinels.
func (o *Orchestrator) failTranscription(id, detail string) {
	o.recordStage(id, archive.StageTranscribe, archive.OutcomeFailed, detail)
	r, err := o.store.Update(id, func(r *report.Report) {
		r.Transcription = report.TranscriptFailed
		r.Location = report.LocationUnknown
		r.IncidentType = report.IncidentUnknown
	})
	if err != nil {
		return
	}
	o.archiveReport(r)
	o.bus.Publish(events.Event{Kind: events.KindReportEnriched, Report: r})
}

// loadAudio reads a local recording file or downloads a provider URL.
func (o *Orchestrator) loadAudio(ctx context.Context, recordingURL string) ([]byte, error) {
	if strings.TrimSpace(recordingURL) == "" {
		return nil, errors.New("missing recording url")
	}
	if !strings.HasPrefix(recordingURL, "http://") && !strings.HasPrefix(recordingURL, "https://") {
		return os.ReadFile(recordingURL)
	}
	return o.fetcher.Fetch(ctx, recordingURL)
}

func (o *Orchestrator) recordStage(id, stage, outcome, detail string) {
	if o.archive == nil {
		return
	}
	if err := o.archive.RecordStage(context.Background(), id, stage, outcome, detail, config.Now()); err != nil {
		o.log.WithField("report", id).Warnf("archive stage write failed: %v", err)
	}
}

func (o *Orchestrator) archiveReport(r report.Report) {
	if o.archive == nil {
		return
	}
	if err := o.archive.UpsertReport(context.Background(), r, config.Now()); err != nil {
		o.log.WithField("report", r.ID).Warnf("archive report write failed: %v", err)
	}
}
