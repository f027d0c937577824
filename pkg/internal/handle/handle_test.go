package handle_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docpipe/pkg/api"
	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/engine"
	"github.com/yeisme/docpipe/pkg/internal/engine/enginetest"
	"github.com/yeisme/docpipe/pkg/internal/handle"
	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/service"
	"github.com/yeisme/docpipe/pkg/internal/sidecar/sidecartest"
	"github.com/yeisme/docpipe/pkg/internal/storage/kv"
	"github.com/yeisme/docpipe/pkg/internal/store"
	"github.com/yeisme/docpipe/pkg/internal/store/storetest"
	"github.com/yeisme/docpipe/pkg/middleware"
	"github.com/yeisme/docpipe/pkg/queue"
)

type server struct {
	engine  *gin.Engine
	fake    *enginetest.Fake
	objects *sidecartest.MemoryStore
	trigger *service.IngestionTrigger
	recon   *service.Reconciler
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := storetest.NewDB(t)
	s := &server{fake: enginetest.NewFake(), objects: sidecartest.NewMemoryStore()}

	d := service.Deps{
		Documents: store.NewDocumentStore(db),
		Deletions: store.NewDeletionStore(db),
		Engine:    s.fake,
		Objects:   s.objects,
		KV:        kv.NewMemoryKV(),
		Pipeline: configs.PipelineConfig{
			Bucket:               "docpipe",
			ReconcileConcurrency: 2,
			ReconcileBatchSize:   50,
			MaxJobAge:            time.Hour,
			ClaimLease:           time.Minute,
			ResyncLease:          time.Minute,
			AllowedExtensions:    []string{".pdf"},
		},
		EngineTimeout: time.Second,
		Logger:        zerolog.Nop(),
	}

	s.trigger = service.NewIngestionTrigger(d)
	s.recon = service.NewReconciler(d, s.trigger)

	h := handle.NewHandlers(handle.Services{
		Status:     service.NewStatusService(d),
		Trigger:    s.trigger,
		Deletions:  service.NewDeletionService(d),
		Reconciler: s.recon,
		Resyncer:   service.NewResyncer(d),
	})

	s.engine = gin.New()
	s.engine.Use(
		middleware.AuthMiddleware(configs.AuthConfig{Enabled: true, SkipPaths: []string{"/api/v1/health"}}),
		middleware.RoleMiddleware(),
	)
	api.RegisterGroup(s.engine, h)

	return s
}

func (s *server) upload(t *testing.T, owner, doc string) *model.DocumentRecord {
	t.Helper()

	key := owner + "/" + doc + "/report.pdf"
	s.objects.Put("docpipe", key, []byte("%PDF"))

	res, err := s.trigger.Handle(context.Background(), queue.ObjectCreatedPayload{Bucket: "docpipe", Key: key, ETag: "v1"})
	require.NoError(t, err)
	require.Equal(t, service.OutcomeStarted, res.Outcome)

	return res.Record
}

func (s *server) do(method, path, owner, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if owner != "" {
		req.Header.Set("X-Owner-Id", owner)
	}

	if role != "" {
		req.Header.Set("X-Role", role)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), v))
}

func TestGetStatus(t *testing.T) {
	s := newServer(t)
	s.upload(t, "ownerA", "doc1")

	w := s.do(http.MethodGet, "/api/v1/documents/doc1/status", "ownerA", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view service.StatusView
	decode(t, w, &view)
	assert.Equal(t, model.StatusIngestionStarted, view.CurrentStatus)
	assert.Equal(t, 30, view.Progress)
	assert.Equal(t, "report.pdf", view.FileName)

	// 其他 owner 看不到
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/documents/doc1/status", "ownerB", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/documents/doc1/status", "", "").Code)
}

func TestListAndSummary(t *testing.T) {
	s := newServer(t)
	s.upload(t, "ownerA", "doc1")
	s.upload(t, "ownerA", "doc2")
	s.upload(t, "ownerB", "doc3")

	w := s.do(http.MethodGet, "/api/v1/documents?status=INGESTION_STARTED", "ownerA", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res service.ListResult
	decode(t, w, &res)
	assert.EqualValues(t, 2, res.Total)
	assert.Len(t, res.Items, 2)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/documents?status=DONE", "ownerA", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/documents?limit=-1", "ownerA", "").Code)

	w = s.do(http.MethodGet, "/api/v1/documents/summary", "ownerA", "")
	require.Equal(t, http.StatusOK, w.Code)

	var sum struct {
		Counts map[string]int64 `json:"counts"`
		Total  int64            `json:"total"`
	}
	decode(t, w, &sum)
	assert.EqualValues(t, 2, sum.Total)
	assert.EqualValues(t, 2, sum.Counts["INGESTION_STARTED"])
	assert.EqualValues(t, 0, sum.Counts["READY"])
}

func TestReprocess(t *testing.T) {
	s := newServer(t)
	rec := s.upload(t, "ownerA", "doc1")

	// 处理中不能重新处理
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/v1/documents/doc1/reprocess", "ownerA", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/v1/documents/nope/reprocess", "ownerA", "").Code)

	s.fake.SetState(rec.JobID(), engine.JobFailed, "unsupported_format")
	_, err := s.recon.Tick(context.Background())
	require.NoError(t, err)

	w := s.do(http.MethodPost, "/api/v1/documents/doc1/reprocess", "ownerA", "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var view service.StatusView
	decode(t, w, &view)
	assert.Equal(t, 2, view.Attempt)
	assert.Equal(t, model.StatusIngestionStarted, view.CurrentStatus)
}

func TestDeleteDocumentAndReport(t *testing.T) {
	s := newServer(t)
	s.upload(t, "ownerA", "doc1")

	w := s.do(http.MethodDelete, "/api/v1/documents/doc1", "ownerA", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report service.DeletionReport
	decode(t, w, &report)
	assert.Equal(t, model.DeletionCompleted, report.Status)
	assert.Equal(t, model.StepSucceeded, report.Resources[model.ResourceRecords].Status)
	assert.False(t, s.objects.Has("docpipe", "ownerA/doc1/report.pdf"))

	w = s.do(http.MethodGet, "/api/v1/deletions/"+report.DeletionID, "ownerA", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/deletions/"+report.DeletionID, "ownerB", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/documents/doc1/status", "ownerA", "").Code)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	s := newServer(t)
	s.upload(t, "ownerA", "doc1")

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/v1/admin/reconcile", "ops", "").Code)

	w := s.do(http.MethodPost, "/api/v1/admin/reconcile", "ops", "operator")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rep service.ReconcileReport
	decode(t, w, &rep)
	assert.Equal(t, 1, rep.Scanned)

	w = s.do(http.MethodPost, "/api/v1/admin/resync", "ops", "operator")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"started"`))
	assert.Equal(t, 1, s.fake.ResyncCalls())

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/api/v1/admin/owners/ownerA", "ops", "operator").Code)

	w = s.do(http.MethodDelete, "/api/v1/admin/owners/ownerA", "ops", "admin")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/documents/doc1/status", "ownerA", "").Code)
}

func TestSchedulerRoutesWithoutScheduler(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/api/v1/scheduler/jobs", "ops", "operator").Code)
}
