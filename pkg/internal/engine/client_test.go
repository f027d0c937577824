package engine_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/engine"
	"github.com/yeisme/docpipe/pkg/internal/model"
)

func newClient(t *testing.T, h http.Handler) *engine.Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return engine.NewClient(configs.EngineConfig{
		BaseURL:      srv.URL,
		Token:        "secret",
		DataSourceID: "ds1",
		Timeout:      2 * time.Second,
		Burst:        10,
		Retry: configs.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Multiplier:     2,
		},
	}, zerolog.Nop())
}

func TestStartJob(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/data-sources/ds1/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}

		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}

		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"key":"o1/d1/a.pdf"`) {
			t.Errorf("body does not carry the object key: %s", body)
		}

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"jobId":"j-1"}`))
	}))

	id, err := client.StartJob(context.Background(), model.ObjectRef{Bucket: "b", Key: "o1/d1/a.pdf", OwnerID: "o1", DocumentID: "d1"})
	if err != nil {
		t.Fatalf("start job: %v", err)
	}

	if id != "j-1" {
		t.Errorf("job id = %q", id)
	}
}

func TestStartJob_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}

		_, _ = w.Write([]byte(`{"jobId":"j-2"}`))
	}))

	id, err := client.StartJob(context.Background(), model.ObjectRef{Key: "o/d/a.pdf"})
	if err != nil {
		t.Fatalf("start job: %v", err)
	}

	if id != "j-2" || calls.Load() != 3 {
		t.Errorf("id=%q calls=%d", id, calls.Load())
	}
}

func TestStartJob_Unavailable(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))

	_, err := client.StartJob(context.Background(), model.ObjectRef{Key: "o/d/a.pdf"})
	if !errors.Is(err, engine.ErrUnavailable) || !engine.IsTransient(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}

	var se *engine.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected StatusError 503, got %v", err)
	}
}

func TestGetJobStatus(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/jobs/running":
			_, _ = w.Write([]byte(`{"jobId":"running","status":"IN_PROGRESS"}`))
		case "/v1/jobs/failed":
			_, _ = w.Write([]byte(`{"jobId":"failed","status":"FAILED","failureReasons":["unsupported_format"]}`))
		default:
			http.NotFound(w, r)
		}
	}))

	rep, err := client.GetJobStatus(context.Background(), "running")
	if err != nil || rep.State != engine.JobRunning {
		t.Fatalf("running: %+v %v", rep, err)
	}

	rep, err = client.GetJobStatus(context.Background(), "failed")
	if err != nil || rep.State != engine.JobFailed || rep.Reason != "unsupported_format" {
		t.Fatalf("failed: %+v %v", rep, err)
	}

	_, err = client.GetJobStatus(context.Background(), "missing")
	if !errors.Is(err, engine.ErrJobNotFound) {
		t.Fatalf("expected job not found, got %v", err)
	}

	if engine.IsTransient(err) {
		t.Error("job not found must not be transient")
	}
}

func TestStartResync_AlreadyRunning(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/data-sources/ds1/resync" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		w.WriteHeader(http.StatusConflict)
	}))

	if err := client.StartResync(context.Background()); !errors.Is(err, engine.ErrAlreadyRunning) {
		t.Fatalf("expected already running, got %v", err)
	}
}

func TestNormalizeJobState(t *testing.T) {
	cases := map[string]engine.JobState{
		"STARTING":    engine.JobPending,
		"pending":     engine.JobPending,
		"IN_PROGRESS": engine.JobRunning,
		"COMPLETE":    engine.JobSucceeded,
		"SUCCEEDED":   engine.JobSucceeded,
		"STOPPED":     engine.JobFailed,
		"":            engine.JobPending,
	}

	for in, want := range cases {
		if got := engine.NormalizeJobState(in); got != want {
			t.Errorf("NormalizeJobState(%q) = %s, want %s", in, got, want)
		}
	}
}
