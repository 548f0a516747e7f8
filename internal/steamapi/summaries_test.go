package steamapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/ISteamUser/GetPlayerSummaries/v2/" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("key") != "k" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("steamids") == "76561199999999999" {
			_, _ = w.Write([]byte(`{"response":{"players":[{"steamid":"76561199999999999","personaname":"Ghost","profileurl":"https://steamcommunity.com/id/ghost/"}]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"response":{"players":[]}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPlayerSummaryFoundAndCached(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	c := NewClient("k", WithBaseURL(srv.URL))

	for i := 0; i < 2; i++ {
		p, err := c.PlayerSummary(context.Background(), "76561199999999999")
		if err != nil {
			t.Fatalf("summary: %v", err)
		}
		if p.PersonaName != "Ghost" {
			t.Fatalf("persona: %q", p.PersonaName)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("requests: %d, want 1", got)
	}
}

func TestPlayerSummaryMissing(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	c := NewClient("k", WithBaseURL(srv.URL))

	if _, err := c.PlayerSummary(context.Background(), "76561190000000000"); !errors.Is(err, ErrNoAccount) {
		t.Fatalf("err: %v", err)
	}
}

func TestPlayerSummaryHTTPError(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	c := NewClient("wrong", WithBaseURL(srv.URL))

	_, err := c.PlayerSummary(context.Background(), "76561199999999999")
	if err == nil || errors.Is(err, ErrNoAccount) {
		t.Fatalf("err: %v", err)
	}
}

func TestDisabledWithoutKey(t *testing.T) {
	c := NewClient("  ")
	if c.Enabled() {
		t.Fatal("client without key must be disabled")
	}
	if _, err := c.PlayerSummary(context.Background(), "76561199999999999"); err == nil {
		t.Fatal("expected error")
	}
}
