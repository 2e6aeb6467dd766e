package http_server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

func TestServerServesRegisteredRoutesAndHealth(t *testing.T) {
	cfg := &HTTPServerConfig{Enabled: true, Address: "127.0.0.1:0", EnableHealth: true}
	comp, err := NewFactory(core.NewContainer()).Create(cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	hc := comp.(*HTTPServerComponent)
	if err := hc.AddRouteRegistrar(func(r chi.Router, _ *core.Container) error {
		r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("pong")) })
		return nil
	}); err != nil {
		t.Fatalf("add registrar: %v", err)
	}
	if err := hc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer hc.Stop(context.Background())

	resp, err := http.Get("http://" + hc.Addr() + "/ping")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Fatalf("unexpected body %q", body)
	}

	resp, err = http.Get("http://" + hc.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	if err := hc.AddRouteRegistrar(func(chi.Router, *core.Container) error { return nil }); err == nil || !strings.Contains(err.Error(), "already started") {
		t.Fatalf("expected registrar rejection after start, got %v", err)
	}
}
