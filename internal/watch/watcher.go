// Package watch monitors the recordings directory so audio dropped there by
// hand or by an SFTP sync enters the same pipeline as webhook recordings.
package watch

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"civic_reports/internal/config"
	"civic_reports/internal/intake"
	"civic_reports/internal/logger"
)

// Watcher feeds new audio files in RecordingsDir into the intake pipeline.
// The file name doubles as the call ID so repeat events deduplicate.
type Watcher struct {
	cfg  config.Config
	orch *intake.Orchestrator
	log  *logger.Logger
}

func New(cfg config.Config, orch *intake.Orchestrator, log *logger.Logger) *Watcher {
	return &Watcher{cfg: cfg, orch: orch, log: log}
}

func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.EnableWatcher {
		w.log.Info("recordings watcher disabled")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && isAudio(evt.Name) {
					w.ingest(evt.Name)
				}
			case err := <-watcher.Errors:
				w.log.Warnf("watcher error: %v", err)
			}
		}
	}()
	return watcher.Add(w.cfg.RecordingsDir)
}

// Backfill ingests audio files already present in the directory.
func (w *Watcher) Backfill(ctx context.Context) error {
	entries, err := filepath.Glob(filepath.Join(w.cfg.RecordingsDir, "*"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if isAudio(e) {
			w.ingest(e)
		}
	}
	return nil
}

func (w *Watcher) ingest(path string) {
	if err := w.orch.HandleLocalRecording(filepath.Base(path), path); err != nil {
		w.log.WithField("file", filepath.Base(path)).Warnf("ingest failed: %v", err)
	}
}

func isAudio(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".wav", ".m4a", ".aac", ".flac", ".ogg":
		return true
	default:
		return false
	}
}
