/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/muninn/internal/assets"
	"github.com/friendsincode/muninn/internal/auth"
	"github.com/friendsincode/muninn/internal/fallback"
	"github.com/friendsincode/muninn/internal/freshness"
	"github.com/friendsincode/muninn/internal/killswitch"
	"github.com/friendsincode/muninn/internal/ledger"
	"github.com/friendsincode/muninn/internal/logbuffer"
	"github.com/friendsincode/muninn/internal/models"
	"github.com/friendsincode/muninn/internal/playout"
	"github.com/friendsincode/muninn/internal/queue"
)

type testAPI struct {
	server *httptest.Server
	key    string
	queues *queue.Manager
	store  *assets.Store
	ksw    *killswitch.Switch
	signal *fallback.Signal
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Asset{}, &models.PlayHistory{}, &models.APIKey{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store, err := assets.NewStore(db, t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	queues, err := queue.NewManager(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	guard := freshness.NewGuard(65*time.Minute, zerolog.Nop())
	signal := fallback.NewSignal(filepath.Join(t.TempDir(), "force_break"), zerolog.Nop())
	chain := fallback.NewChain(queues, guard, store, signal, "/srv/emergency.ogg", nil, zerolog.Nop())
	driver := playout.NewDriver(chain, queues, store, ledger.New(db, zerolog.Nop()), nil, zerolog.Nop())
	ksw := killswitch.New(filepath.Join(t.TempDir(), "killswitch"), zerolog.Nop())
	logs := logbuffer.New(100)
	logs.Write([]byte(`{"level":"info","message":"boot"}`))

	plaintext, key, err := auth.GenerateAPIKey("test", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if err := db.Create(key).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}

	a := New(db, []byte("test-secret"), driver, chain, queues, ksw, logs, nil, false, zerolog.Nop())
	server := httptest.NewServer(a.Router())
	t.Cleanup(server.Close)

	return &testAPI{
		server: server,
		key:    plaintext,
		queues: queues,
		store:  store,
		ksw:    ksw,
		signal: signal,
	}
}

func (ta *testAPI) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ta.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-API-Key", ta.key)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func (ta *testAPI) push(t *testing.T, q models.QueueName, kind models.AssetKind, body string) *models.Asset {
	t.Helper()
	asset, err := ta.store.Register(context.Background(), kind, body, ".mp3", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := ta.queues.Push(q, asset.ID, time.Now()); err != nil {
		t.Fatalf("Push: %v", err)
	}
	time.Sleep(time.Millisecond)
	return asset
}

func TestHealthzIsPublic(t *testing.T) {
	ta := newTestAPI(t)
	resp, err := http.Get(ta.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestV1RequiresAuth(t *testing.T) {
	ta := newTestAPI(t)
	resp, err := http.Get(ta.server.URL + "/v1/chain")
	if err != nil {
		t.Fatalf("GET /v1/chain: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without credentials", resp.StatusCode)
	}
}

func TestNextReturnsSelection(t *testing.T) {
	ta := newTestAPI(t)
	track := ta.push(t, models.QueueMusic, models.AssetMusic, "track-1")

	resp, body := ta.do(t, http.MethodGet, "/v1/next", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["level"] != "music" || body["asset_id"] != track.ID {
		t.Errorf("body = %v", body)
	}
	if body["queue"] != "music" {
		t.Errorf("queue = %v, want music", body["queue"])
	}
}

func TestInterruptProbe(t *testing.T) {
	ta := newTestAPI(t)

	resp, _ := ta.do(t, http.MethodGet, "/v1/next?probe=interrupt", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 with empty override queue", resp.StatusCode)
	}

	drop := ta.push(t, models.QueueOverride, models.AssetMusic, "drop-1")
	resp, body := ta.do(t, http.MethodGet, "/v1/next?probe=interrupt", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["asset_id"] != drop.ID || body["level"] != "override" {
		t.Errorf("body = %v", body)
	}
}

func TestTrackStartRoundTrip(t *testing.T) {
	ta := newTestAPI(t)
	track := ta.push(t, models.QueueMusic, models.AssetMusic, "track-1")

	resp, _ := ta.do(t, http.MethodPost, "/v1/playout/track-start", map[string]any{
		"asset_id": track.ID,
		"queue":    "music",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if depth := ta.queues.Depth(models.QueueMusic); depth != 0 {
		t.Errorf("depth = %d, want 0 after track start", depth)
	}

	resp, _ = ta.do(t, http.MethodPost, "/v1/playout/track-start", map[string]any{
		"queue": "music",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing asset id", resp.StatusCode)
	}
}

func TestForceBreakEndpoint(t *testing.T) {
	ta := newTestAPI(t)

	resp, body := ta.do(t, http.MethodPost, "/v1/force-break", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if !ta.signal.IsSet() {
		t.Error("force-break signal should be set")
	}
	if body["break_ready"] != false {
		t.Errorf("break_ready = %v, want false with empty break queue", body["break_ready"])
	}

	ta.push(t, models.QueueBreaks, models.AssetBreak, "break-1")
	resp, body = ta.do(t, http.MethodPost, "/v1/force-break", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if body["break_ready"] != true {
		t.Errorf("break_ready = %v, want true with a queued break", body["break_ready"])
	}
}

func TestKillSwitchEndpoint(t *testing.T) {
	ta := newTestAPI(t)

	resp, _ := ta.do(t, http.MethodPost, "/v1/killswitch", map[string]any{
		"engaged": true,
		"reason":  "maintenance window",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !ta.ksw.Snapshot() {
		t.Error("kill switch should be engaged")
	}

	resp, _ = ta.do(t, http.MethodPost, "/v1/killswitch", map[string]any{"engaged": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ta.ksw.Snapshot() {
		t.Error("kill switch should be disengaged")
	}
}

func TestQueuesAndChainEndpoints(t *testing.T) {
	ta := newTestAPI(t)
	ta.push(t, models.QueueMusic, models.AssetMusic, "track-1")
	ta.push(t, models.QueueMusic, models.AssetMusic, "track-2")

	resp, body := ta.do(t, http.MethodGet, "/v1/queues", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	music, ok := body["music"].(map[string]any)
	if !ok {
		t.Fatalf("body = %v", body)
	}
	if music["depth"].(float64) != 2 {
		t.Errorf("music depth = %v, want 2", music["depth"])
	}

	// Before any selection the chain reports the bottom of the ladder.
	resp, body = ta.do(t, http.MethodGet, "/v1/chain", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["level"] != "emergency" {
		t.Errorf("level = %v, want emergency before first selection", body["level"])
	}
}

func TestLogsEndpoint(t *testing.T) {
	ta := newTestAPI(t)

	resp, body := ta.do(t, http.MethodGet, "/v1/logs?n=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	entries, ok := body["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Errorf("entries = %v, want the boot line", body["entries"])
	}
}
