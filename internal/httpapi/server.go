package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/example/promptpack/api-go/internal/health"
	"github.com/example/promptpack/api-go/internal/logging"
	"github.com/example/promptpack/api-go/internal/model"
	"github.com/example/promptpack/api-go/internal/pipeline"
)

const maxRequestBytes = 1 << 20

type Server struct {
	Pipeline *pipeline.Pipeline
	Health   *health.Checker
	Log      logrus.FieldLogger
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(s.Log))
	r.Use(cors)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/generate", s.handleGenerate)

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Health.CheckAll(r.Context()))
}

func (s Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	job, err := s.Pipeline.Run(ctx, req.Prompt, func(_ context.Context, d pipeline.Delivery) error {
		h := w.Header()
		h.Set("Content-Type", d.ContentType)
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Name}))
		h.Set("Content-Length", strconv.FormatInt(d.Size, 10))
		h.Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, err := io.Copy(w, d.Body)
		return err
	})
	if err == nil {
		return
	}
	if errors.Is(err, model.ErrTransport) {
		// The client is gone or the body is half written; nothing left to send.
		s.Log.WithField("job_id", job.ID).WithError(err).Warn("generate: delivery aborted")
		return
	}
	writeErr(w, statusFor(err), errors.New(model.Reason(err)))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidPrompt):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
