package printhost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	return NewClient(url, "test-key", Options{BackoffBase: time.Millisecond})
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/version", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"api":"0.1"}`))
	}))
	defer srv.Close()

	assert.True(t, testClient(srv.URL).Ping(context.Background()))
}

func TestPingUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	assert.False(t, testClient(srv.URL).Ping(context.Background()))
}

func TestIssueCommands(t *testing.T) {
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/printer/command", r.URL.Path)
		var body struct {
			Commands []string `json:"commands"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received = body.Commands
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := testClient(srv.URL).IssueCommands(context.Background(), []string{"G28", "M84"})

	require.NoError(t, err)
	assert.Equal(t, []string{"G28", "M84"}, received)
}

func TestUploadAndStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "true", r.FormValue("print"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "bracket.gcode", header.Filename)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"done": true,
			"files": map[string]any{
				"local": map[string]any{"name": "bracket_0.gcode"},
			},
		})
	}))
	defer srv.Close()

	name, err := testClient(srv.URL).UploadAndStart(context.Background(), strings.NewReader("G28\n"), "bracket.gcode")

	require.NoError(t, err)
	assert.Equal(t, "bracket_0.gcode", name)
}

func TestUploadRejectedByHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"done": false})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).UploadAndStart(context.Background(), strings.NewReader("G28\n"), "bracket.gcode")

	assert.Error(t, err)
}

func TestFetchPrinterState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/printer", r.URL.Path)
		w.Write([]byte(`{
			"state": {"flags": {"operational": true, "printing": true, "ready": false}},
			"temperature": {"tool0": {"actual": 212.4}, "bed": {"actual": 60.1}}
		}`))
	}))
	defer srv.Close()

	flags, temps, err := testClient(srv.URL).FetchPrinterState(context.Background())

	require.NoError(t, err)
	assert.True(t, flags.Operational)
	assert.True(t, flags.Printing)
	assert.False(t, flags.Ready)
	assert.Equal(t, 212.4, temps.Tool)
	assert.Equal(t, 60.1, temps.Bed)
}

func TestFetchJobStateNullTimeLeft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"job": {"file": {"name": "bracket_0.gcode"}, "estimatedPrintTime": 3600},
			"progress": {"printTimeLeft": null}
		}`))
	}))
	defer srv.Close()

	job, err := testClient(srv.URL).FetchJobState(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "bracket_0.gcode", job.FileName)
	assert.Equal(t, time.Hour, job.EstimatedTotal)
	assert.Nil(t, job.EstimatedLeft)
}

func TestFetchJobStateReportedTimeLeft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"job": {"file": {"name": "a.gcode"}},
			"progress": {"printTimeLeft": 125.5}
		}`))
	}))
	defer srv.Close()

	job, err := testClient(srv.URL).FetchJobState(context.Background())

	require.NoError(t, err)
	require.NotNil(t, job.EstimatedLeft)
	assert.Equal(t, 125500*time.Millisecond, *job.EstimatedLeft)
}

func TestCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Command string `json:"command"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cancel", body.Command)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.NoError(t, testClient(srv.URL).Cancel(context.Background()))
}

func TestRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := testClient(srv.URL).IssueCommands(context.Background(), []string{"G28"})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchJobState(context.Background())

	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := testClient(srv.URL).IssueCommands(context.Background(), []string{"G28"})

	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}
