// Package persist publishes finished reports to the hosted datastore. The
// published row is deliberately minimal (geometry point + incident type);
// the full report lives in the in-process store and the local archive.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"civic_reports/internal/report"
)

// Persister stores one finished incident record.
type Persister interface {
	Persist(ctx context.Context, r report.Report) error
}

// SupabaseClient inserts rows into the alerts table through the Supabase
// REST API.
type SupabaseClient struct {
	client  *http.Client
	baseURL string
	key     string
	table   string
}

// NewSupabaseClient builds a persistence client. An empty baseURL or key
// yields a client whose Persist reports "not configured".
func NewSupabaseClient(httpClient *http.Client, baseURL, key string) *SupabaseClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &SupabaseClient{
		client:  httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		table:   "alerts",
	}
}

// Configured reports whether credentials are present.
func (c *SupabaseClient) Configured() bool {
	return c.baseURL != "" && c.key != ""
}

// Persist inserts the report's published row. Reports without coordinates
// are skipped; the caller treats every error as log-only.
func (c *SupabaseClient) Persist(ctx context.Context, r report.Report) error {
	if !c.Configured() {
		return errors.New("datastore not configured")
	}
	if r.Coordinates == nil {
		return errors.New("report has no coordinates")
	}

	// PostGIS point order is longitude first.
	row := map[string]string{
		"map_point": fmt.Sprintf("POINT(%f %f)", r.Coordinates.Lng, r.Coordinates.Lat),
		"type":      r.IncidentType,
	}
	buf, err := json.Marshal(row)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, c.table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("datastore status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
