package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhisperClientTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" There is a pothole on Main Street. "}`))
	}))
	defer srv.Close()

	c := NewWhisperClient(srv.Client(), srv.URL, "test-key", "whisper-1")
	text, err := c.Transcribe(context.Background(), []byte("audio-bytes"), "rec.mp3")
	require.NoError(t, err)
	assert.Equal(t, "There is a pothole on Main Street.", text)
}

func TestWhisperClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewWhisperClient(srv.Client(), srv.URL, "test-key", "whisper-1")

	_, err := c.Transcribe(context.Background(), nil, "rec.mp3")
	assert.ErrorContains(t, err, "empty recording")

	_, err = c.Transcribe(context.Background(), []byte("x"), "rec.mp3")
	assert.ErrorContains(t, err, "status 400")

	c = NewWhisperClient(nil, srv.URL, "", "whisper-1")
	_, err = c.Transcribe(context.Background(), []byte("x"), "rec.mp3")
	assert.ErrorContains(t, err, "api key")
}

func TestRecordingFetcherUsesBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "token", pass)
		_, _ = w.Write([]byte("audio-data"))
	}))
	defer srv.Close()

	f := NewRecordingFetcher(srv.Client(), "AC123", "token")
	data, err := f.Fetch(context.Background(), srv.URL+"/rec.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("audio-data"), data)
}

func TestRecordingFetcherPermanentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewRecordingFetcher(srv.Client(), "AC123", "token")
	_, err := f.Fetch(context.Background(), srv.URL+"/gone.mp3")
	assert.ErrorContains(t, err, "status 404")
}
