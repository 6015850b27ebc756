/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package debugserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/mediafoxhq/mediafox/internal/store"
)

type fakeEngine struct {
	st *store.Store
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{st: store.New(zerolog.Nop())}
}

func (f *fakeEngine) GetState() store.PlayerStateData { return f.st.GetState() }
func (f *fakeEngine) Subscribe(fn func(store.PlayerStateData)) store.Subscription {
	return f.st.Subscribe(fn)
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeEngine, *Server) {
	t.Helper()
	eng := newFakeEngine()
	srv := New(eng, Config{}, zerolog.Nop())
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts, eng, srv
}

func TestHealthzReportsOK(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStateReturnsCurrentSnapshot(t *testing.T) {
	ts, eng, _ := newTestServer(t)

	eng.st.SetState(store.NewPartial().SetVolume(0.5))

	resp, err := http.Get(ts.URL + "/state")
	if err != nil {
		t.Fatalf("GET /state: %v", err)
	}
	defer resp.Body.Close()

	var got store.PlayerStateData
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding /state body: %v", err)
	}
	if got.Volume != 0.5 {
		t.Fatalf("expected volume 0.5 in snapshot, got %v", got.Volume)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStateStreamPushesUpdates(t *testing.T) {
	ts, eng, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + ts.URL[len("http"):] + "/state/stream"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dialing state stream: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "test done")

	// Drain the initial_state message.
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("reading initial state: %v", err)
	}

	eng.st.SetState(store.NewPartial().SetVolume(0.75))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("reading state update: %v", err)
	}

	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshaling update: %v", err)
	}
	if msg.Type != "state_update" {
		t.Fatalf("expected state_update message, got %q", msg.Type)
	}
	if msg.State == nil || msg.State.Volume != 0.75 {
		t.Fatalf("expected volume 0.75 in pushed update, got %+v", msg.State)
	}
}
