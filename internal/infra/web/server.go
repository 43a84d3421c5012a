package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"presenter-video-pipeline/internal/domain"
	"presenter-video-pipeline/internal/domain/model"
	"presenter-video-pipeline/internal/infra/logging"
	"presenter-video-pipeline/internal/usecase"
)

// Server exposes the pipeline over the request/response API the
// client-driven polling loop calls.
type Server struct {
	pipeline usecase.PipelineUseCase
	log      *zerolog.Logger
}

func NewServer(pipeline usecase.PipelineUseCase, logger *zerolog.Logger) *Server {
	return &Server{pipeline: pipeline, log: logger}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/{jobID}", s.handleGet)
		r.Post("/{jobID}/advance", s.handleAdvance)
	})
	return r
}

type createJobRequest struct {
	ID             string                `json:"id,omitempty"`
	ScriptContent  string                `json:"script_content"`
	Synthesis      model.SynthesisParams `json:"synthesis_params"`
	Avatar         model.AvatarParams    `json:"avatar_params"`
	WantsComposite bool                  `json:"wants_composite"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := s.pipeline.CreateJob(r.Context(), usecase.CreateJobParams{
		ID:             req.ID,
		ScriptContent:  req.ScriptContent,
		Synthesis:      req.Synthesis,
		Avatar:         req.Avatar,
		WantsComposite: req.WantsComposite,
	})
	if err != nil {
		var ve *domain.ValidationError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, ve.Error())
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "job id already exists")
		default:
			s.log.Error().Err(err).Msg("create job failed")
			writeError(w, http.StatusInternalServerError, "failed to create job")
		}
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	view, err := s.pipeline.Advance(r.Context(), jobID)
	if err != nil {
		var te *domain.TimeoutError
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.As(err, &te):
			writeError(w, http.StatusGatewayTimeout, te.Error())
		default:
			s.log.Error().Err(err).Str("job_id", jobID).Msg("advance failed")
			writeError(w, http.StatusInternalServerError, "advance failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	view, err := s.pipeline.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.log.Error().Err(err).Str("job_id", jobID).Msg("get job failed")
		writeError(w, http.StatusInternalServerError, "failed to read job")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	phase := model.Phase(r.URL.Query().Get("phase"))
	views, err := s.pipeline.List(r.Context(), phase, 100)
	if err != nil {
		s.log.Error().Err(err).Msg("list jobs failed")
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(logging.WithTraceID(r.Context(), middleware.GetReqID(r.Context())))
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
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
