// Package server provides HTTP server construction for relaydeck.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/relaydeck/internal/auth"
	"github.com/alexjbarnes/relaydeck/internal/config"
	"github.com/alexjbarnes/relaydeck/internal/metrics"
	"github.com/alexjbarnes/relaydeck/internal/notice"
	"github.com/alexjbarnes/relaydeck/upstream"
)

// ChannelStatus reports the push channel state.
type ChannelStatus interface {
	State() upstream.ChannelState
}

// JobStatus reports the job poller state.
type JobStatus interface {
	AuthRequired() bool
	LastRefresh() time.Time
}

// NoticeSource reports and dismisses the notice currently on display.
type NoticeSource interface {
	Current() *notice.Notice
	Dismiss() *notice.Notice
}

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	APIKeys    []config.APIKeyEntry
	MCPHandler http.Handler
	Channel    ChannelStatus
	Jobs       JobStatus
	Notices    NoticeSource
	Logger     *slog.Logger
}

// Health is the /healthz response body.
type Health struct {
	Status       string                `json:"status"`
	Channel      upstream.ChannelState `json:"channel"`
	AuthRequired bool                  `json:"auth_required"`
	LastRefresh  *time.Time            `json:"last_refresh,omitempty"`
	Notice       string                `json:"notice,omitempty"`
}

// NewMux builds the HTTP mux with health, notice, metrics and MCP endpoints. The
// MCP endpoint is protected by API key middleware and is only mounted
// when both a handler and at least one key are configured.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth(cfg))
	mux.Handle("GET /metrics", metrics.Handler())
	if cfg.Notices != nil {
		mux.HandleFunc("DELETE /notice", handleDismiss(cfg))
	}

	if cfg.MCPHandler != nil && len(cfg.APIKeys) > 0 {
		authMiddleware := auth.Middleware(cfg.APIKeys, cfg.Logger)
		mux.Handle("/mcp", authMiddleware(cfg.MCPHandler))
	}

	return mux
}

// handleHealth reports "ok" while the push channel is connected and the
// job API accepts our token, "degraded" when updates fall back to
// polling, and 503 "unauthorized" once the job API rejects the token.
func handleHealth(cfg MuxConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h := Health{Status: "ok", Channel: upstream.StateDisconnected}
		code := http.StatusOK

		if cfg.Channel != nil {
			h.Channel = cfg.Channel.State()
		}
		if h.Channel != upstream.StateConnected {
			h.Status = "degraded"
		}

		if cfg.Jobs != nil {
			h.AuthRequired = cfg.Jobs.AuthRequired()
			if last := cfg.Jobs.LastRefresh(); !last.IsZero() {
				h.LastRefresh = &last
			}
		}
		if h.AuthRequired {
			h.Status = "unauthorized"
			code = http.StatusServiceUnavailable
		}

		if cfg.Notices != nil {
			if n := cfg.Notices.Current(); n != nil {
				h.Notice = n.Text
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(h); err != nil {
			cfg.Logger.Debug("writing health response", slog.String("error", err.Error()))
		}
	}
}

// handleDismiss clears the notice on display. It answers 204 either way
// so repeated dismissals are harmless.
func handleDismiss(cfg MuxConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if n := cfg.Notices.Dismiss(); n != nil {
			cfg.Logger.Debug("notice dismissed", slog.String("notice", n.Text))
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
