// Package app wires the pipeline together and runs the HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"civic_reports/internal/archive"
	"civic_reports/internal/assistant"
	"civic_reports/internal/config"
	"civic_reports/internal/events"
	"civic_reports/internal/extract"
	"civic_reports/internal/geocode"
	"civic_reports/internal/httpapi"
	"civic_reports/internal/intake"
	"civic_reports/internal/logger"
	"civic_reports/internal/notify"
	"civic_reports/internal/persist"
	"civic_reports/internal/queue"
	"civic_reports/internal/report"
	"civic_reports/internal/transcribe"
	"civic_reports/internal/watch"
)

// App owns the long-lived components.
type App struct {
	cfg      config.Config
	log      *logger.Logger
	store    *report.Store
	archive  *archive.Archive
	queue    *queue.Queue
	bus      *events.Bus
	orch     *intake.Orchestrator
	watcher  *watch.Watcher
	notifier *notify.Notifier
	mux      *http.ServeMux
	closers  []func() error
}

func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	hist, err := archive.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	st := report.NewStore()
	bus := events.NewBus()
	q := queue.New(cfg.QueueSize, cfg.WorkerCount, cfg.JobTimeout(), log)

	deps := intake.Deps{
		Store:    st,
		Archive:  hist,
		Queue:    q,
		Bus:      bus,
		Log:      log,
		Fetcher:  transcribe.NewRecordingFetcher(nil, cfg.TwilioAccountSID, cfg.TwilioAuthToken),
		Speech:   transcribe.NewWhisperClient(nil, cfg.SpeechBaseURL, cfg.SpeechAPIKey, cfg.SpeechModel),
		Geocoder: geocode.NewClient(nil, "", cfg.MapsAPIKey),
	}
	if sb := persist.NewSupabaseClient(nil, cfg.SupabaseURL, cfg.SupabaseKey); sb.Configured() {
		deps.Persister = sb
	} else {
		log.Warn("SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY not set, publishing disabled")
	}

	a := &App{cfg: cfg, log: log, store: st, archive: hist, queue: q, bus: bus}
	a.closers = append(a.closers, hist.Close)

	var asst *assistant.Assistant
	if cfg.GeminiAPIKey != "" {
		extractor, err := extract.NewGeminiExtractor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		deps.Extractor = extractor
		a.closers = append(a.closers, extractor.Close)

		responder, err := assistant.NewGeminiResponder(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, responder.Close)
		asst = assistant.New(responder, st)
	} else {
		log.Warn("GEMINI_API_KEY not set, field extraction and assistant disabled")
		deps.Extractor = noopExtractor{}
	}

	a.orch = intake.New(cfg, deps)
	a.watcher = watch.New(cfg, a.orch, log)
	a.notifier = notify.New(cfg.AlertWebhookURL, cfg.AlertBotID, log)

	a.mux = http.NewServeMux()
	httpapi.NewRouter(cfg, st, a.orch, q, hist, asst, log).Register(a.mux)
	return a, nil
}

// Run starts workers, the watcher, the notifier, and the HTTP server, and
// blocks until the context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.queue.Start(ctx)
	go a.notifier.Run(ctx, a.bus.Subscribe())
	if err := a.watcher.Start(ctx); err != nil {
		return err
	}
	if a.cfg.EnableWatcher {
		if err := a.watcher.Backfill(ctx); err != nil {
			a.log.Warnf("backfill: %v", err)
		}
	}

	srv := &http.Server{Addr: ":" + a.cfg.HTTPPort, Handler: a.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		a.queue.Stop(shutdownCtx)
	}()
	a.log.WithField("port", a.cfg.HTTPPort).Info("http listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return a.Close()
}

// Close releases held resources.
func (a *App) Close() error {
	var first error
	for _, fn := range a.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *App) Mux() *http.ServeMux { return a.mux }

// noopExtractor stands in when no model key is configured; every transcript
// reads as address-free.
type noopExtractor struct{}

func (noopExtractor) Extract(ctx context.Context, transcript string) (extract.Fields, error) {
	return extract.Fields{}, nil
}
