package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kavachlabs/kavach/internal/config"
	"github.com/kavachlabs/kavach/internal/history"
	"github.com/kavachlabs/kavach/internal/pipeline"
	"github.com/kavachlabs/kavach/internal/protocol"
)

type fakePipeline struct {
	name string
	pred pipeline.Prediction
	err  error
}

func (f *fakePipeline) Name() string { return f.name }
func (f *fakePipeline) Close() error { return nil }
func (f *fakePipeline) Classify(path string) (pipeline.Prediction, error) {
	if f.err != nil {
		return pipeline.Prediction{}, f.err
	}
	return f.pred, nil
}

type fakeSet struct {
	pipelines map[string]pipeline.Pipeline
	def       string
}

func (f *fakeSet) Get(name string) (pipeline.Pipeline, error) {
	if name == "" {
		name = f.def
	}
	p, ok := f.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", name)
	}
	return p, nil
}

func (f *fakeSet) Names() []string { return []string{"mel"} }
func (f *fakeSet) Default() string { return f.def }

type fakeRecorder struct {
	records []history.Record
	err     error
}

func (f *fakeRecorder) Append(_ context.Context, rec history.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRecorder) Recent(_ context.Context, limit int) ([]history.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.records) {
		limit = len(f.records)
	}
	out := make([]history.Record, 0, limit)
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.records[i])
	}
	return out, nil
}

type fakePublisher struct {
	events []protocol.PredictionEvent
}

func (f *fakePublisher) PublishPrediction(evt protocol.PredictionEvent) error {
	f.events = append(f.events, evt)
	return nil
}

type fakeBadge struct {
	enabled   bool
	published []protocol.Safety
	err       error
}

func (f *fakeBadge) Enabled() bool { return f.enabled }
func (f *fakeBadge) Publish(safety protocol.Safety) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, safety)
	return nil
}

func dangerPrediction() pipeline.Prediction {
	return pipeline.Prediction{
		Pipeline:   "mel",
		Label:      "DANGER (Fear)",
		Confidence: 0.91,
		Safety:     protocol.SafetyDanger,
		Code:       "D",
		Probs: []pipeline.LabelProb{
			{Label: "Safe/Neutral", Prob: 0.05},
			{Label: "DANGER (Fear)", Prob: 0.91},
			{Label: "Caution (Angry)", Prob: 0.04},
		},
	}
}

type testEnv struct {
	srv       *Server
	recorder  *fakeRecorder
	publisher *fakePublisher
	badge     *fakeBadge
	ready     *atomic.Bool
}

func newTestEnv(t *testing.T, p pipeline.Pipeline) *testEnv {
	t.Helper()
	env := &testEnv{
		recorder:  &fakeRecorder{},
		publisher: &fakePublisher{},
		badge:     &fakeBadge{enabled: true},
		ready:     &atomic.Bool{},
	}
	cfg := config.HTTPConfig{Bind: "127.0.0.1", Port: 0, MaxUploadMB: 4, HistoryRows: 20}
	set := &fakeSet{pipelines: map[string]pipeline.Pipeline{"mel": p}, def: "mel"}
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	srv, err := New(cfg, set, env.recorder, env.publisher, env.badge, nil, env.ready, log)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.srv = srv
	return env
}

func uploadRequest(t *testing.T, target, filename, pipelineName string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("RIFFfake")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if pipelineName != "" {
		if err := w.WriteField("pipeline", pipelineName); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestClassifyAPI(t *testing.T) {
	env := newTestEnv(t, &fakePipeline{name: "mel", pred: dangerPrediction()})
	handler := env.srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "/api/classify", "scream.wav", "mel"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res classifyResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Result == nil || res.Result.Label != "DANGER (Fear)" {
		t.Fatalf("unexpected result: %+v", res.Result)
	}
	if res.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if !res.Notified {
		t.Fatal("expected badge notification to be reported")
	}

	if len(env.recorder.records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(env.recorder.records))
	}
	if env.recorder.records[0].Code != "D" {
		t.Fatalf("unexpected recorded code %q", env.recorder.records[0].Code)
	}
	if len(env.publisher.events) != 1 {
		t.Fatalf("expected 1 bus event, got %d", len(env.publisher.events))
	}
	if env.publisher.events[0].Safety != protocol.SafetyDanger {
		t.Fatalf("unexpected event safety %q", env.publisher.events[0].Safety)
	}
	if len(env.badge.published) != 1 || env.badge.published[0] != protocol.SafetyDanger {
		t.Fatalf("unexpected badge publishes: %v", env.badge.published)
	}
}

func TestClassifyAPIMissingFile(t *testing.T) {
	env := newTestEnv(t, &fakePipeline{name: "mel", pred: dangerPrediction()})

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("pipeline", "mel")
	_ = w.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/classify", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestClassifyAPIUnknownPipeline(t *testing.T) {
	env := newTestEnv(t, &fakePipeline{name: "mel", pred: dangerPrediction()})

	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, uploadRequest(t, "/api/classify", "a.wav", "spectral"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestClassifyFailureKeepsBadgeQuiet(t *testing.T) {
	env := newTestEnv(t, &fakePipeline{name: "mel", err: fmt.Errorf("corrupt wav header")})

	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, uploadRequest(t, "/api/classify", "a.wav", "mel"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(env.badge.published) != 0 {
		t.Fatalf("badge must stay quiet on failure, got %v", env.badge.published)
	}
	if len(env.recorder.records) != 0 {
		t.Fatalf("nothing should be recorded on failure, got %d", len(env.recorder.records))
	}
}

func TestBadgeFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t, &fakePipeline{name: "mel", pred: dangerPrediction()})
	env.badge.err = fmt.Errorf("broker unreachable")

	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, uploadRequest(t, "/api/classify", "a.wav", "mel"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite badge failure, got %d", rec.Code)
	}
	var res classifyResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Notified {
		t.Fatal("notified must be false when the badge publish fails")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakePipeline{name: "mel", pred: dangerPrediction()})
	handler := env.srv.Handler()

	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, uploadRequest(t, "/api/classify", "a.wav", "mel"))
		if rec.Code != http.StatusOK {
			t.Fatalf("classify failed: %d", rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var recs []history.Record
	if err := json.NewDecoder(rec.Body).Decode(&recs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, &fakePipeline{name: "mel", pred: dangerPrediction()})
	handler := env.srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before start: expected 503, got %d", rec.Code)
	}

	env.ready.Store(true)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz after start: expected 200, got %d", rec.Code)
	}
}

type healthyPublisher struct {
	fakePublisher
	healthy bool
}

func (p *healthyPublisher) Healthy() bool { return p.healthy }

func TestReadyReflectsBusHealth(t *testing.T) {
	env := newTestEnv(t, &fakePipeline{name: "mel", pred: dangerPrediction()})
	pub := &healthyPublisher{healthy: false}
	env.srv.publisher = pub
	env.ready.Store(true)
	handler := env.srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with unhealthy bus: expected 503, got %d", rec.Code)
	}

	pub.healthy = true
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz with healthy bus: expected 200, got %d", rec.Code)
	}
}

func TestIndexRendersUploadForm(t *testing.T) {
	env := newTestEnv(t, &fakePipeline{name: "mel", pred: dangerPrediction()})

	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"multipart/form-data", `name="audio"`, `<option value="mel"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("index page missing %q", want)
		}
	}
}

func TestClassifyFormShowsResult(t *testing.T) {
	env := newTestEnv(t, &fakePipeline{name: "mel", pred: dangerPrediction()})

	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, uploadRequest(t, "/classify", "scream.wav", "mel"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "DANGER (Fear)") {
		t.Fatal("result page missing predicted label")
	}
}
