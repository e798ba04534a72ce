package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/export"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/progress"
	"github.com/sells-group/valuation-cli/internal/sheet"
	"github.com/sells-group/valuation-cli/internal/store"
	"github.com/sells-group/valuation-cli/internal/valuation"
)

// apiServer exposes the orchestrator and store over HTTP.
type apiServer struct {
	// ctx bounds batches started over HTTP; it outlives single requests.
	ctx            context.Context
	orch           *valuation.Orchestrator
	feedback       *valuation.FeedbackCache
	hub            *progress.Hub
	store          store.Store
	allowedOrigins []string
	maxUpload      int64
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", s.handleStartBatch)
		r.Get("/current", s.handleCurrentBatch)
		r.Delete("/current", s.handleResetBatch)
		r.Post("/current/cancel", s.handleCancelBatch)
		r.Get("/current/export", s.handleExportBatch)
		r.Get("/current/ws", s.hub.ServeHTTP)
	})

	r.Route("/valuations", func(r chi.Router) {
		r.Get("/", s.handleListValuations)
		r.Get("/{id}", s.handleGetValuation)
	})

	r.Post("/feedback", s.handleAddFeedback)
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"running":     s.orch.Running(),
		"connections": s.hub.ConnectionCount(),
	})
}

// startRequest is the JSON form of POST /batches.
type startRequest struct {
	Vehicles []model.VehicleInput `json:"vehicles"`
}

func (s *apiServer) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	inputs, headerRow, err := s.readInputs(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.orch.Start(s.ctx, inputs)
	switch {
	case errors.Is(err, valuation.ErrNothingToProcess):
		writeError(w, http.StatusBadRequest, "no vehicles found")
		return
	case errors.Is(err, valuation.ErrBatchRunning):
		writeError(w, http.StatusConflict, "a batch is already running")
		return
	case err != nil:
		zap.L().Error("start batch", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start batch")
		return
	}

	resp := map[string]any{"batch_id": job.ID(), "total": job.Len()}
	if headerRow >= 0 {
		resp["header_row"] = headerRow
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// readInputs accepts a multipart spreadsheet upload in field "file" or a
// JSON body. headerRow is -1 for JSON bodies.
func (s *apiServer) readInputs(w http.ResponseWriter, r *http.Request) ([]model.VehicleInput, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(s.maxUpload); err != nil {
			return nil, -1, eris.Wrap(err, "invalid upload")
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return nil, -1, eris.New("missing file field")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, -1, eris.Wrap(err, "read upload")
		}
		rows, err := sheet.Read(hdr.Filename, data)
		if err != nil {
			return nil, -1, err
		}
		imp := sheet.Parse(rows)
		return imp.Inputs, imp.HeaderRow, nil
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, -1, eris.New("invalid request body")
	}
	return model.KeepPopulated(req.Vehicles), -1, nil
}

func (s *apiServer) currentJob(w http.ResponseWriter) *model.BatchJob {
	job := s.orch.Current()
	if job == nil {
		writeError(w, http.StatusNotFound, "no batch")
	}
	return job
}

func (s *apiServer) handleCurrentBatch(w http.ResponseWriter, r *http.Request) {
	job := s.currentJob(w)
	if job == nil {
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *apiServer) handleResetBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Reset(); err != nil {
		writeError(w, http.StatusConflict, "a batch is still running")
		return
	}
	s.hub.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	if !s.orch.Cancel() {
		writeError(w, http.StatusConflict, "no batch is running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *apiServer) handleExportBatch(w http.ResponseWriter, r *http.Request) {
	job := s.currentJob(w)
	if job == nil {
		return
	}
	data, err := export.BatchXLSX(job.Snapshot())
	if err != nil {
		zap.L().Error("export batch", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="valuations-%s.xlsx"`, job.ID()))
	_, _ = w.Write(data)
}

func (s *apiServer) handleListValuations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	recs, err := s.store.ListValuations(r.Context(), store.ValuationFilter{
		BatchID: q.Get("batch_id"),
		Brand:   q.Get("brand"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		zap.L().Error("list valuations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list valuations")
		return
	}
	if recs == nil {
		recs = []model.ValuationRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *apiServer) handleGetValuation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetValuation(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "valuation not found")
	case err != nil:
		zap.L().Error("get valuation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load valuation")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *apiServer) handleAddFeedback(w http.ResponseWriter, r *http.Request) {
	var fb model.FeedbackRecord
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateFeedback(fb); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.store.AddFeedback(r.Context(), fb)
	if err != nil {
		zap.L().Error("add feedback", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save feedback")
		return
	}
	// The next batch should learn from this correction.
	s.feedback.Invalidate()
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}
