// Package server exposes the classification runtime over HTTP: a small
// upload page for manual checks and a JSON API for scripted clients.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kavachlabs/kavach/internal/config"
	"github.com/kavachlabs/kavach/internal/history"
	"github.com/kavachlabs/kavach/internal/pipeline"
	"github.com/kavachlabs/kavach/internal/protocol"
)

//go:embed templates/*.html
var templateFS embed.FS

// Classifier is the pipeline surface the server needs.
type Classifier interface {
	Get(name string) (pipeline.Pipeline, error)
	Names() []string
	Default() string
}

// Recorder persists classification results.
type Recorder interface {
	Append(ctx context.Context, rec history.Record) error
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// Publisher broadcasts results to other local services.
type Publisher interface {
	PublishPrediction(evt protocol.PredictionEvent) error
}

// Badge pushes the one-byte safety code to remote badge devices.
type Badge interface {
	Enabled() bool
	Publish(safety protocol.Safety) error
}

// Server handles the HTTP surface of the runtime.
type Server struct {
	cfg       config.HTTPConfig
	log       *slog.Logger
	set       Classifier
	recorder  Recorder
	publisher Publisher
	badge     Badge
	metrics   http.Handler
	ready     *atomic.Bool
	tmpl      *template.Template

	classifications metric.Int64Counter
}

// New builds a Server. The metrics handler and the publisher and badge
// integrations may be nil when the corresponding subsystem is disabled.
func New(cfg config.HTTPConfig, set Classifier, recorder Recorder, publisher Publisher, badge Badge, metrics http.Handler, ready *atomic.Bool, log *slog.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	counter, err := otel.Meter("kavach/server").Int64Counter("kavach.classifications",
		metric.WithDescription("Number of classification requests served"))
	if err != nil {
		return nil, fmt.Errorf("create classification counter: %w", err)
	}

	return &Server{
		cfg:             cfg,
		log:             log,
		set:             set,
		recorder:        recorder,
		publisher:       publisher,
		badge:           badge,
		metrics:         metrics,
		ready:           ready,
		tmpl:            tmpl,
		classifications: counter,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /classify", s.handleClassifyForm)
	mux.HandleFunc("POST /api/classify", s.handleClassifyAPI)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

type classifyResult struct {
	SessionID string               `json:"session_id"`
	Filename  string               `json:"filename"`
	Notified  bool                 `json:"notified"`
	Timestamp time.Time            `json:"timestamp"`
	Result    *pipeline.Prediction `json:"result"`
}

type indexData struct {
	Pipelines []string
	Default   string
	Result    *classifyResult
	Error     string
	History   []history.Record
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r, nil, "")
}

func (s *Server) handleClassifyForm(w http.ResponseWriter, r *http.Request) {
	res, err := s.classify(r)
	if err != nil {
		s.renderIndex(w, r, nil, err.Error())
		return
	}
	s.renderIndex(w, r, res, "")
}

func (s *Server) handleClassifyAPI(w http.ResponseWriter, r *http.Request) {
	res, err := s.classify(r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errInternal) {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.HistoryRows
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	recs, err := s.recorder.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("history query failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready == nil || !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	// A configured bus that lost its connection makes the runtime not ready.
	if h, ok := s.publisher.(interface{ Healthy() bool }); ok && !h.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("bus unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// errInternal marks failures that are the runtime's fault, not the caller's.
var errInternal = errors.New("internal error")

func (s *Server) classify(r *http.Request) (*classifyResult, error) {
	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, fmt.Errorf("parse upload: %w", err)
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, errors.New("missing audio file field")
	}
	defer file.Close()

	p, err := s.set.Get(r.FormValue("pipeline"))
	if err != nil {
		return nil, err
	}

	path, cleanup, err := spoolUpload(file, header.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: spool upload: %v", errInternal, err)
	}
	defer cleanup()

	pred, err := p.Classify(path)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", header.Filename, err)
	}

	res := &classifyResult{
		SessionID: uuid.NewString(),
		Filename:  header.Filename,
		Timestamp: time.Now().UTC(),
		Result:    &pred,
	}

	s.classifications.Add(r.Context(), 1,
		metric.WithAttributes(
			attribute.String("pipeline", pred.Pipeline),
			attribute.String("safety", string(pred.Safety)),
		))

	if err := s.recorder.Append(r.Context(), history.Record{
		SessionID:  res.SessionID,
		Pipeline:   pred.Pipeline,
		Label:      pred.Label,
		Confidence: pred.Confidence,
		Safety:     string(pred.Safety),
		Code:       pred.Code,
		CreatedAt:  res.Timestamp,
	}); err != nil {
		s.log.Warn("history append failed", slog.String("error", err.Error()))
	}

	if s.publisher != nil {
		evt := protocol.PredictionEvent{
			SessionID:  res.SessionID,
			Pipeline:   pred.Pipeline,
			Label:      pred.Label,
			Confidence: pred.Confidence,
			Safety:     pred.Safety,
			Code:       pred.Code,
			Timestamp:  res.Timestamp,
		}
		if err := s.publisher.PublishPrediction(evt); err != nil {
			s.log.Warn("bus publish failed", slog.String("error", err.Error()))
		}
	}

	if s.badge != nil && s.badge.Enabled() {
		if err := s.badge.Publish(pred.Safety); err != nil {
			s.log.Warn("badge publish failed",
				slog.String("code", pred.Code),
				slog.String("error", err.Error()))
		} else {
			res.Notified = true
		}
	}

	return res, nil
}

// spoolUpload writes the uploaded audio to a temp file, keeping the original
// extension because the loader dispatches on it.
func spoolUpload(src multipart.File, filename string) (string, func(), error) {
	ext := strings.ToLower(filepath.Ext(filename))
	tmp, err := os.CreateTemp("", "kavach-upload-*"+ext)
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		_ = os.Remove(tmp.Name())
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp.Name(), cleanup, nil
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, res *classifyResult, errMsg string) {
	recs, err := s.recorder.Recent(r.Context(), s.cfg.HistoryRows)
	if err != nil {
		s.log.Warn("history query failed", slog.String("error", err.Error()))
	}
	data := indexData{
		Pipelines: s.set.Names(),
		Default:   s.set.Default(),
		Result:    res,
		Error:     errMsg,
		History:   recs,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.log.Error("render failed", slog.String("error", err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
