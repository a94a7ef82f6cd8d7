// Package transcribe turns finished call recordings into text through an
// OpenAI-compatible speech endpoint. It is never invoked on the webhook
// request path; only enrichment workers call it.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Transcriber converts a finite audio recording into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Fetcher downloads a recording from the telephony provider.
type Fetcher interface {
	Fetch(ctx context.Context, recordingURL string) ([]byte, error)
}

// WhisperClient calls POST {base}/v1/audio/transcriptions with a multipart
// upload, the way the OpenAI audio API expects.
type WhisperClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

const maxUploadBytes = 25 * 1024 * 1024

// NewWhisperClient builds a speech client. A nil httpClient gets a default
// with a generous timeout; transcription takes seconds, not milliseconds.
func NewWhisperClient(httpClient *http.Client, baseURL, apiKey, model string) *WhisperClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 180 * time.Second}
	}
	return &WhisperClient{
		client:  httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

// Transcribe uploads the audio and returns the transcript text. Transient
// failures are retried a bounded number of times.
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("speech api key not set")
	}
	if len(audio) == 0 {
		return "", errors.New("empty recording")
	}
	if len(audio) > maxUploadBytes {
		return "", fmt.Errorf("recording exceeds %d byte limit", maxUploadBytes)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		text, err := c.upload(ctx, audio, filename)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *WhisperClient) upload(ctx context.Context, audio []byte, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fw, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	_ = writer.WriteField("model", c.model)
	_ = writer.WriteField("response_format", "json")
	if err := writer.Close(); err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("speech api status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return "", errors.New("empty transcript from speech api")
	}
	return text, nil
}

// RecordingFetcher downloads recordings from the telephony API using basic
// auth with the account credentials.
type RecordingFetcher struct {
	client     *http.Client
	accountSID string
	authToken  string
}

// NewRecordingFetcher builds a fetcher for provider-hosted recording URLs.
func NewRecordingFetcher(httpClient *http.Client, accountSID, authToken string) *RecordingFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RecordingFetcher{client: httpClient, accountSID: accountSID, authToken: authToken}
}

// Fetch downloads the recording bytes, retrying transient failures with
// exponential backoff.
func (f *RecordingFetcher) Fetch(ctx context.Context, recordingURL string) ([]byte, error) {
	if strings.TrimSpace(recordingURL) == "" {
		return nil, errors.New("missing recording url")
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 20 * time.Second

	var data []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if f.accountSID != "" {
			req.SetBasicAuth(f.accountSID, f.authToken)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("recording fetch status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("recording fetch status %d", resp.StatusCode))
		}
		data, err = io.ReadAll(resp.Body)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return data, nil
}
