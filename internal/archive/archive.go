// Package archive keeps a local SQLite history of reports and their
// enrichment stage transitions for the ops surface. It is observability
// only: pipeline outcomes never depend on a successful archive write.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"civic_reports/internal/report"
)

// Enrichment stage names recorded per report.
const (
	StageReceived   = "received"
	StageTranscribe = "transcribe"
	StageExtract    = "extract"
	StageGeocode    = "geocode"
	StagePersist    = "persist"
	StageDone       = "done"
)

// Stage outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Archive wraps SQLite access for report history.
type Archive struct {
	db *sql.DB
}

// Open opens (and migrates) the archive database at path.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error { return a.db.Close() }

func (a *Archive) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
            call_id TEXT PRIMARY KEY,
            caller_number TEXT,
            recording_url TEXT,
            transcript TEXT,
            location TEXT,
            incident_type TEXT,
            priority TEXT,
            status TEXT,
            lat REAL,
            lng REAL,
            created_at TIMESTAMP,
            updated_at TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS stages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            call_id TEXT,
            stage TEXT,
            outcome TEXT,
            detail TEXT,
            created_at TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_stages_call ON stages(call_id);`,
	}
	for _, stmt := range stmts {
		if _, err := a.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertReport writes the current state of a report.
func (a *Archive) UpsertReport(ctx context.Context, r report.Report, ts time.Time) error {
	var lat, lng sql.NullFloat64
	if r.Coordinates != nil {
		lat = sql.NullFloat64{Float64: r.Coordinates.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: r.Coordinates.Lng, Valid: true}
	}
	_, err := a.db.ExecContext(ctx, `INSERT INTO reports(call_id, caller_number, recording_url, transcript, location, incident_type, priority, status, lat, lng, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(call_id) DO UPDATE SET
            transcript=excluded.transcript,
            location=excluded.location,
            incident_type=excluded.incident_type,
            priority=excluded.priority,
            status=excluded.status,
            lat=excluded.lat,
            lng=excluded.lng,
            updated_at=excluded.updated_at`,
		r.ID, r.CallerNumber, r.RecordingURL, r.Transcription, r.Location,
		r.IncidentType, r.Priority, r.Status, lat, lng, r.CallTime, ts)
	return err
}

// StageRecord is one stage transition row.
type StageRecord struct {
	CallID    string    `json:"call_id"`
	Stage     string    `json:"stage"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordStage appends a stage transition for a report.
func (a *Archive) RecordStage(ctx context.Context, callID, stage, outcome, detail string, ts time.Time) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO stages(call_id, stage, outcome, detail, created_at) VALUES(?, ?, ?, ?, ?)`,
		callID, stage, outcome, detail, ts)
	return err
}

// Stages returns stage transitions for one report, oldest first.
func (a *Archive) Stages(ctx context.Context, callID string) ([]StageRecord, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT call_id, stage, outcome, detail, created_at FROM stages WHERE call_id=? ORDER BY id ASC`, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StageRecord
	for rows.Next() {
		var s StageRecord
		var detail sql.NullString
		if err := rows.Scan(&s.CallID, &s.Stage, &s.Outcome, &detail, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Detail = detail.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// ArchivedReport is one archived report row.
type ArchivedReport struct {
	CallID       string    `json:"call_id"`
	CallerNumber string    `json:"caller_number"`
	Location     string    `json:"location"`
	IncidentType string    `json:"incident_type"`
	Priority     string    `json:"priority"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Recent returns the most recently updated reports.
func (a *Archive) Recent(ctx context.Context, limit int) ([]ArchivedReport, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT call_id, caller_number, location, incident_type, priority, status, updated_at
         FROM reports ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ArchivedReport
	for rows.Next() {
		var r ArchivedReport
		var location, incident, priority sql.NullString
		if err := rows.Scan(&r.CallID, &r.CallerNumber, &location, &incident, &priority, &r.Status, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Location = location.String
		r.IncidentType = incident.String
		r.Priority = priority.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Health returns an error if the database is not reachable.
func (a *Archive) Health(ctx context.Context) error {
	row := a.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("archive health: %w", err)
	}
	return nil
}
