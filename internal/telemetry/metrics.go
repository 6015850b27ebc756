/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors the engine's components increment directly, kept as
// package vars alongside the HTTP-layer collectors below.
var (
	FramesPresented = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafox_frames_presented_total",
		Help: "Video frames successfully presented by the sync scheduler.",
	})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafox_frames_dropped_total",
		Help: "Video frames dropped by the sync scheduler, by reason.",
	}, []string{"reason"})

	DecodeQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mediafox_decode_queue_depth",
		Help: "Current depth of a decode track's output queue.",
	}, []string{"kind"})

	RendererFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafox_renderer_fallbacks_total",
		Help: "Renderer backend downgrades, by backend fallen from.",
	}, []string{"from"})

	AudioDriftCorrectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafox_audio_drift_corrections_total",
		Help: "Times the audio output re-anchored its clock mapping due to drift.",
	})

	TranscodeOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafox_transcode_operations_total",
		Help: "Fallback transcode operations, by outcome.",
	}, []string{"outcome"})

	PlaylistPrefetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafox_playlist_prefetches_total",
		Help: "Playlist Coordinator prefetch attempts started.",
	})

	CompositorRenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "mediafox_compositor_render_duration_seconds",
		Help: "Time to fetch every layer frame and draw one composition frame.",
	})

	// APIActiveConnections, APIRequestDuration and APIRequestsTotal
	// instrument the debug server's own HTTP surface (middleware.go).
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediafox_debugserver_active_connections",
		Help: "In-flight requests against the loopback debug server.",
	})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "mediafox_debugserver_request_duration_seconds",
		Help: "Debug server request duration by method, route and status.",
	}, []string{"method", "route", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafox_debugserver_requests_total",
		Help: "Debug server requests by method, route and status.",
	}, []string{"method", "route", "status"})
)

// Handler exposes the process's collected metrics for the debug
// server's /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
