package report

import "time"

// Report statuses. The enrichment pipeline never touches status; only the
// explicit status-update API does.
const (
	StatusNew      = "new"
	StatusInReview = "in_review"
	StatusResolved = "resolved"
)

// Priority levels computed from the transcript.
const (
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Placeholder and sentinel values for fields the pipeline fills in later.
// Dashboard readers see these until enrichment finishes.
const (
	TranscriptPending = "Processing..."
	TranscriptFailed  = "Transcription unavailable"
	LocationPending   = "Processing location..."
	LocationUnknown   = "Not specified"
	IncidentUnknown   = "unknown"
)

// Coordinates is a geographic point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Report is the central entity, one per phone call.
type Report struct {
	ID            string       `json:"id"`
	CallerNumber  string       `json:"caller_number"`
	RecordingURL  string       `json:"recording_url"`
	CallTime      time.Time    `json:"call_time"`
	Transcription string       `json:"transcription"`
	Location      string       `json:"location"`
	IncidentType  string       `json:"incident_type,omitempty"`
	Status        string       `json:"status"`
	Priority      string       `json:"priority"`
	Coordinates   *Coordinates `json:"coordinates,omitempty"`
}

// New creates a report with placeholder enrichment fields.
func New(id, caller, recordingURL string, callTime time.Time) Report {
	return Report{
		ID:            id,
		CallerNumber:  caller,
		RecordingURL:  recordingURL,
		CallTime:      callTime,
		Transcription: TranscriptPending,
		Location:      LocationPending,
		Status:        StatusNew,
		Priority:      PriorityMedium,
	}
}

// KnownStatus reports whether s is one of the recognized status values.
func KnownStatus(s string) bool {
	switch s {
	case StatusNew, StatusInReview, StatusResolved:
		return true
	default:
		return false
	}
}
