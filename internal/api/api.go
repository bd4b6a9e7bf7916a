// Package api exposes the job submission HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mukapc-sys/ffmpeg-normalizer/internal/asset"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/pipeline"
)

// Runner executes one archive job. Satisfied by *pipeline.Pipeline; tests
// substitute a stub.
type Runner interface {
	Run(ctx context.Context, job asset.Job) (pipeline.Result, error)
}

type videoPayload struct {
	Filename    string `json:"filename"`
	R2SignedURL string `json:"r2SignedUrl"`
}

type archiveRequest struct {
	JobID               string            `json:"jobId"`
	ProjectID           string            `json:"projectId"`
	UserID              string            `json:"userId"`
	ProductCode         string            `json:"productCode"`
	Videos              []videoPayload    `json:"videos"`
	R2Config            asset.StoreConfig `json:"r2Config"`
	NotificationWebhook string            `json:"notificationWebhook"`
}

type archiveResponse struct {
	Success               bool    `json:"success"`
	ZipPath               string  `json:"zipPath,omitempty"`
	ZipPublicURL          string  `json:"zipPublicUrl,omitempty"`
	ZipSizeBytes          int64   `json:"zipSizeBytes,omitempty"`
	VideosCount           int     `json:"videosCount,omitempty"`
	ProcessingTimeSeconds float64 `json:"processingTimeSeconds,omitempty"`
	Error                 string  `json:"error,omitempty"`
}

// Handler holds the API's dependencies.
type Handler struct {
	Runner Runner
}

// NewRouter wires the API routes with the standard middleware chain.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		requestLogger,
	)

	r.Get("/healthz", h.Health)
	r.Post("/api/v1/archive", h.CreateArchive)

	return r
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateArchive accepts a job, runs the pipeline synchronously and reports
// the archive coordinates. A job with zero videos is rejected up front.
func (h *Handler) CreateArchive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if len(req.Videos) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "videos is required and must not be empty"})
		return
	}

	job := asset.Job{
		ID:              req.JobID,
		ProjectID:       req.ProjectID,
		UserID:          req.UserID,
		ProductCode:     req.ProductCode,
		Store:           req.R2Config,
		NotificationURL: req.NotificationWebhook,
	}
	for _, v := range req.Videos {
		job.Assets = append(job.Assets, asset.Descriptor{Filename: v.Filename, SourceURL: v.R2SignedURL})
	}

	res, err := h.Runner.Run(r.Context(), job)
	if err != nil {
		// Error text surfaces to the caller; StoreConfig secrets never enter
		// error values, so nothing sensitive can leak here.
		writeJSON(w, http.StatusInternalServerError, archiveResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, archiveResponse{
		Success:               true,
		ZipPath:               res.RemotePath,
		ZipPublicURL:          res.PublicURL,
		ZipSizeBytes:          res.SizeBytes,
		VideosCount:           res.SuccessCount,
		ProcessingTimeSeconds: res.Elapsed.Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("Failed to write response body")
	}
}
