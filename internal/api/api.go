/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api is the control surface: the playout engine pulls its next
// item and reports track starts here, and operators drive the force-break
// signal and the kill switch. Everything under /v1 requires an API key or
// a bearer token.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn/internal/auth"
	"github.com/friendsincode/muninn/internal/events"
	"github.com/friendsincode/muninn/internal/fallback"
	"github.com/friendsincode/muninn/internal/killswitch"
	"github.com/friendsincode/muninn/internal/logbuffer"
	"github.com/friendsincode/muninn/internal/models"
	"github.com/friendsincode/muninn/internal/playout"
	"github.com/friendsincode/muninn/internal/queue"
	"github.com/friendsincode/muninn/internal/telemetry"
)

// API exposes the control HTTP handlers.
type API struct {
	db        *gorm.DB
	jwtSecret []byte
	driver    *playout.Driver
	chain     *fallback.Chain
	queues    *queue.Manager
	ksw       *killswitch.Switch
	logs      *logbuffer.Buffer
	bus       *events.Bus
	logger    zerolog.Logger

	tracing bool
}

// New creates the control API.
func New(db *gorm.DB, jwtSecret []byte, driver *playout.Driver, chain *fallback.Chain, queues *queue.Manager, ksw *killswitch.Switch, logs *logbuffer.Buffer, bus *events.Bus, tracing bool, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		jwtSecret: jwtSecret,
		driver:    driver,
		chain:     chain,
		queues:    queues,
		ksw:       ksw,
		logs:      logs,
		bus:       bus,
		tracing:   tracing,
		logger:    logger,
	}
}

// Router builds the chi router.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.MetricsMiddleware)
	if a.tracing {
		r.Use(telemetry.TracingMiddleware)
	}

	r.Get("/healthz", a.handleHealth)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(auth.MiddlewareWithJWT(a.db, a.jwtSecret))

		v1.Get("/next", a.handleNext)
		v1.Post("/playout/track-start", a.handleTrackStart)
		v1.Post("/force-break", a.handleForceBreak)
		v1.Post("/killswitch", a.handleKillSwitch)
		v1.Get("/queues", a.handleQueues)
		v1.Get("/chain", a.handleChain)
		v1.Get("/logs", a.handleLogs)
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNext answers the engine's pull. With ?probe=interrupt it becomes
// the mid-track override probe and returns 204 when nothing pre-empts.
func (a *API) handleNext(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("probe") == "interrupt" {
		sel, err := a.driver.CheckInterrupt(r.Context())
		if err != nil {
			a.logger.Error().Err(err).Msg("interrupt probe failed")
			writeError(w, http.StatusInternalServerError, "probe_failed")
			return
		}
		if sel == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, selectionResponse(sel))
		return
	}

	sel, err := a.driver.Next(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("next selection failed")
		writeError(w, http.StatusInternalServerError, "selection_failed")
		return
	}
	writeJSON(w, http.StatusOK, selectionResponse(sel))
}

func selectionResponse(sel *fallback.Selection) map[string]any {
	resp := map[string]any{
		"level":    sel.Level.String(),
		"asset_id": sel.AssetID,
		"title":    sel.Title,
		"path":     sel.Path,
	}
	if sel.Entry != nil {
		resp["queue"] = string(sel.Entry.Queue)
	}
	return resp
}

func (a *API) handleTrackStart(w http.ResponseWriter, r *http.Request) {
	var report playout.TrackStart
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := a.driver.HandleTrackStart(r.Context(), report); err != nil {
		a.logger.Error().Err(err).Str("asset", report.AssetID).Msg("track start failed")
		writeError(w, http.StatusBadRequest, "track_start_rejected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleForceBreak(w http.ResponseWriter, r *http.Request) {
	if err := a.chain.Signal().Set(); err != nil {
		a.logger.Error().Err(err).Msg("force break failed")
		writeError(w, http.StatusInternalServerError, "force_break_failed")
		return
	}
	if a.bus != nil {
		a.bus.Publish(events.EventForceBreakSet, events.Payload{"source": "api"})
	}

	// With no queued break the request pends until the next break
	// publishes; surface that so the operator is not left guessing.
	ready := a.queues.Depth(models.QueueBreaks) > 0
	if !ready {
		a.logger.Warn().Msg("force break requested with empty break queue, pending until next break publishes")
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "requested", "break_ready": ready})
}

func (a *API) handleKillSwitch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Engaged bool   `json:"engaged"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	var err error
	if body.Engaged {
		err = a.ksw.Engage(body.Reason)
	} else {
		err = a.ksw.Disengage()
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("kill switch toggle failed")
		writeError(w, http.StatusInternalServerError, "killswitch_failed")
		return
	}

	if a.bus != nil {
		a.bus.Publish(events.EventKillSwitch, events.Payload{
			"engaged": body.Engaged,
			"reason":  body.Reason,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"engaged": body.Engaged})
}

func (a *API) handleQueues(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]any, 3)
	for _, q := range []models.QueueName{models.QueueOverride, models.QueueBreaks, models.QueueMusic} {
		entries, err := a.queues.Entries(q)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "queue_scan_failed")
			return
		}
		items := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			items = append(items, map[string]any{
				"asset_id":     entry.AssetID,
				"enqueued_at":  entry.EnqueuedAt,
				"generated_at": entry.GeneratedAt,
			})
		}
		out[string(q)] = map[string]any{
			"depth":   len(entries),
			"entries": items,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleChain(w http.ResponseWriter, r *http.Request) {
	level := a.chain.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"level":       level.String(),
		"ordinal":     int(level),
		"force_break": a.chain.Signal().IsSet(),
		"killswitch":  a.ksw.Snapshot(),
	})
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := 100
	if raw := r.URL.Query().Get("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": a.logs.Recent(n)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
