// Package notify posts best-effort completion events to caller supplied
// webhooks. Delivery failure never changes a job's own outcome: by the time
// the event is sent, archive availability is already decided.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultTimeout = 10 * time.Second

// Event is the JSON document delivered to the webhook. Success events carry
// the archive coordinates; failure events carry the error text.
type Event struct {
	JobID        string `json:"jobId"`
	ProjectID    string `json:"projectId"`
	UserID       string `json:"userId"`
	Success      bool   `json:"success"`
	RemotePath   string `json:"remotePath,omitempty"`
	PublicURL    string `json:"publicUrl,omitempty"`
	SizeBytes    int64  `json:"sizeBytes,omitempty"`
	SuccessCount int    `json:"successCount,omitempty"`
	TotalCount   int    `json:"totalCount,omitempty"`
	ElapsedMs    int64  `json:"elapsedMs,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Webhook delivers events to one endpoint. A Webhook with an empty URL is a
// no-op, so callers can hold one unconditionally.
type Webhook struct {
	URL    string
	Client *http.Client
}

// New returns a webhook for the given URL. An empty URL yields a no-op.
func New(url string) *Webhook {
	return &Webhook{
		URL:    url,
		Client: &http.Client{Timeout: defaultTimeout},
	}
}

// Send posts the event. Failures are logged and swallowed.
func (w *Webhook) Send(ctx context.Context, ev Event) {
	if w == nil || w.URL == "" {
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Str("job_id", ev.JobID).Msg("Failed to encode completion event")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Str("job_id", ev.JobID).Msg("Failed to build completion webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client().Do(req)
	if err != nil {
		log.Warn().Err(err).Str("job_id", ev.JobID).Msg("Failed to deliver completion webhook")
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("job_id", ev.JobID).Msg("Completion webhook rejected")
		return
	}
	log.Debug().Str("job_id", ev.JobID).Msg("Completion webhook delivered")
}

func (w *Webhook) client() *http.Client {
	if w.Client != nil {
		return w.Client
	}
	return &http.Client{Timeout: defaultTimeout}
}
