package invalidate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/httpx"
)

func TestNotifySwap(t *testing.T) {
	var gotBody notifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/invalidate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), srv.URL)
	err := c.NotifySwap(context.Background(), "0x1111111111111111111111111111111111111111", 1, "pool-1", "500")
	if err != nil {
		t.Fatalf("NotifySwap: %v", err)
	}
	if gotBody.PoolID != "pool-1" || gotBody.ChainID != 1 {
		t.Fatalf("request body not forwarded: %+v", gotBody)
	}
	if gotBody.OptimisticUpdates.VolumeDelta != "500" {
		t.Fatalf("volume delta = %s, want 500", gotBody.OptimisticUpdates.VolumeDelta)
	}
}

func TestNotifySwapServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), srv.URL)
	err := c.NotifySwap(context.Background(), "0x1111111111111111111111111111111111111111", 1, "pool-1", "500")
	if clierr.CodeOf(err) != clierr.CodeUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
