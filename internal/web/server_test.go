package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/palantir/palantir-compute-module-wine-enricher/internal/enrich"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/jobs"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/pipeline"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/version"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/web"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/core"
)

const wines = "Name;Region;Price\nBarolo;;40\nChianti;;12\n"

func newTestServer(t *testing.T, p core.Completer, opts web.Options) (*httptest.Server, *pipeline.Runner) {
	t.Helper()
	runner := pipeline.NewRunner(jobs.NewRegistry(), enrich.New(p), zap.NewNop())
	ts := httptest.NewServer(web.NewServer(runner, opts, zap.NewNop()).Handler())
	t.Cleanup(ts.Close)
	return ts, runner
}

func postUpload(url, filename, content string, fields map[string]string) (*http.Response, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("csv", filename)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			return nil, err
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return http.Post(url, mw.FormDataContentType(), &body)
}

func upload(t *testing.T, url, filename, content string, fields map[string]string) *http.Response {
	t.Helper()
	resp, err := postUpload(url, filename, content, fields)
	require.NoError(t, err)
	return resp
}

// uploadAsync posts in the background; the response (nil on transport error) arrives on the channel.
func uploadAsync(url, filename, content string, fields map[string]string) <-chan *http.Response {
	done := make(chan *http.Response, 1)
	go func() {
		resp, _ := postUpload(url, filename, content, fields)
		done <- resp
	}()
	return done
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type processBody struct {
	ProcessID        string   `json:"processId"`
	CSV              string   `json:"csv"`
	ProtectedColumns []string `json:"protectedColumns"`
	CompletedRows    int      `json:"completedRows"`
	TotalRows        int      `json:"totalRows"`
	FilledRows       int      `json:"filledRows"`
	FailedRows       int      `json:"failedRows"`
	Cancelled        bool     `json:"cancelled"`
}

type errorBody struct {
	Error string `json:"error"`
}

// blockingProvider holds every call until its context ends.
type blockingProvider struct {
	started chan struct{}
	calls   atomic.Int32
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{started: make(chan struct{}, 16)}
}

func (p *blockingProvider) Complete(ctx context.Context, _ string) (core.Completion, error) {
	p.calls.Add(1)
	p.started <- struct{}{}
	<-ctx.Done()
	return core.Completion{}, ctx.Err()
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, enrich.Stub{}, web.Options{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, version.Current, body["version"])
}

func TestPreview(t *testing.T) {
	ts, _ := newTestServer(t, enrich.Stub{}, web.Options{PreviewRows: 1})

	resp := upload(t, ts.URL+"/api/preview", "wines.csv", wines, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Headers          []string            `json:"headers"`
		Rows             []map[string]string `json:"rows"`
		TotalRows        int                 `json:"totalRows"`
		ProtectedColumns []string            `json:"protectedColumns"`
	}](t, resp)

	assert.Equal(t, []string{"Name", "Region", "Price"}, body.Headers)
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "Barolo", body.Rows[0]["Name"])
	assert.Equal(t, 2, body.TotalRows)
	assert.Equal(t, []string{"Price"}, body.ProtectedColumns)
}

func TestPreview_Rejections(t *testing.T) {
	ts, _ := newTestServer(t, enrich.Stub{}, web.Options{})

	tests := []struct {
		name     string
		filename string
		content  string
		wantErr  string
	}{
		{name: "wrong extension", filename: "wines.txt", content: wines, wantErr: ".csv"},
		{name: "missing file", filename: "", wantErr: "missing"},
		{name: "malformed table", filename: "wines.csv", content: "Name;Region\n\"Barolo;x\n", wantErr: "malformed input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := upload(t, ts.URL+"/api/preview", tt.filename, tt.content, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, decode[errorBody](t, resp).Error, tt.wantErr)
		})
	}
}

func TestProcess_WithStubProvider(t *testing.T) {
	ts, runner := newTestServer(t, enrich.Stub{}, web.Options{})

	resp := upload(t, ts.URL+"/api/process", "WINES.CSV", wines, map[string]string{"language": "English"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[processBody](t, resp)

	assert.NotEmpty(t, body.ProcessID)
	assert.False(t, body.Cancelled)
	assert.Equal(t, 2, body.CompletedRows)
	assert.Equal(t, 2, body.TotalRows)
	assert.Equal(t, 2, body.FilledRows)
	assert.Equal(t, []string{"Price"}, body.ProtectedColumns)
	assert.Equal(t, "Name;Region;Price\nBarolo;Region (stub);40\nChianti;Region (stub);12", body.CSV)

	_, active := runner.Status(body.ProcessID)
	assert.False(t, active)
}

func TestProcess_MalformedInputMakesNoCalls(t *testing.T) {
	p := newBlockingProvider()
	ts, _ := newTestServer(t, p, web.Options{})

	resp := upload(t, ts.URL+"/api/process", "wines.csv", "Name;Region\n\"Barolo;x\n", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[errorBody](t, resp).Error, "line 2")
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestProcess_RejectsNonUUIDProcessID(t *testing.T) {
	ts, _ := newTestServer(t, enrich.Stub{}, web.Options{})

	resp := upload(t, ts.URL+"/api/process", "wines.csv", wines, map[string]string{"process_id": "../etc"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[errorBody](t, resp).Error, "UUID")
}

func TestProcess_CancelMidRun(t *testing.T) {
	p := newBlockingProvider()
	ts, _ := newTestServer(t, p, web.Options{})
	processID := uuid.NewString()

	done := uploadAsync(ts.URL+"/api/process", "wines.csv", wines, map[string]string{"process_id": processID})

	select {
	case <-p.started:
	case <-time.After(5 * time.Second):
		t.Fatal("provider was never called")
	}

	statusResp, err := http.Get(ts.URL + "/api/process/" + processID)
	require.NoError(t, err)
	status := decode[map[string]any](t, statusResp)
	assert.Equal(t, true, status["active"])
	assert.Equal(t, float64(2), status["totalRows"])

	cancelResp, err := http.Post(ts.URL+"/api/process/"+processID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	cancel := decode[map[string]any](t, cancelResp)
	assert.Equal(t, true, cancel["success"])

	var resp *http.Response
	select {
	case resp = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	require.NotNil(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[processBody](t, resp)
	assert.True(t, body.Cancelled)
	assert.Equal(t, processID, body.ProcessID)
	assert.Equal(t, 0, body.CompletedRows)
	assert.Equal(t, wines[:len(wines)-1], body.CSV, "rows are returned as parsed")
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestCancel_UnknownProcessStillSucceeds(t *testing.T) {
	ts, _ := newTestServer(t, enrich.Stub{}, web.Options{})

	resp, err := http.Post(ts.URL+"/api/process/nope/cancel", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode[map[string]any](t, resp)["success"])

	resp, err = http.Get(ts.URL + "/api/process/nope")
	require.NoError(t, err)
	assert.Equal(t, false, decode[map[string]any](t, resp)["active"])
}

func TestProcess_TooManyJobs(t *testing.T) {
	p := newBlockingProvider()
	ts, runner := newTestServer(t, p, web.Options{MaxConcurrentJobs: 1, JobSlotWait: 50 * time.Millisecond})
	first := uuid.NewString()

	done := uploadAsync(ts.URL+"/api/process", "wines.csv", wines, map[string]string{"process_id": first})
	select {
	case <-p.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached the provider")
	}

	resp := upload(t, ts.URL+"/api/process", "wines.csv", wines, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, decode[errorBody](t, resp).Error, "too many concurrent jobs")

	require.True(t, runner.RequestCancel(first))
	select {
	case resp = <-done:
		require.NotNil(t, resp)
		resp.Body.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not stop")
	}
}

func TestDeleteClearsStaleRecord(t *testing.T) {
	registry := jobs.NewRegistry()
	runner := pipeline.NewRunner(registry, enrich.New(enrich.Stub{}), zap.NewNop())
	ts := httptest.NewServer(web.NewServer(runner, web.Options{}, nil).Handler())
	defer ts.Close()

	_, err := registry.Start(context.Background(), "stale")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/process/stale", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, registry.Active())
}
