package registry_ext

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/http_server"
	appconsts "github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	_ "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/api"
	bizConfig "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
)

const memoryConfig = `
app_info:
  app_name: delegate-test
  env: test
logging:
  enabled: true
  level: warn
  format: console
  output: stderr
http_server:
  enabled: true
  address: "127.0.0.1:0"
  request_timeout: 5s
biz_config:
  store:
    driver: memory
  dispatch:
    sync_timeout: 200ms
`

func TestServerLifecycleWithMemoryBackends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(memoryConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	app := application.NewApp(appconsts.ENV_TEST, path)
	app.SetBizConfig(bizConfig.GetBizConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunWithContext(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Errorf("app did not stop")
		}
	}()

	var addr string
	deadline := time.Now().Add(5 * time.Second)
	for addr == "" && time.Now().Before(deadline) {
		if comp, err := app.GetComponent(appconsts.COMPONENT_HTTP_SERVER); err == nil {
			if srv, ok := comp.(*http_server.HTTPServerComponent); ok && srv.IsActive() {
				addr = srv.Addr()
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	if addr == "" {
		t.Fatalf("http server never came up")
	}
	for _, name := range []string{consts.COMP_DAO_TASK, consts.COMP_SVC_DISPATCH, consts.COMP_CTRL_TASK, consts.COMP_SVC_TASK_REAPER} {
		if _, err := app.GetComponent(name); err != nil {
			t.Fatalf("component %s missing: %v", name, err)
		}
	}
	if _, err := app.GetComponent(consts.COMP_SVC_METRICS); err == nil {
		t.Fatalf("metrics should not be registered without prometheus")
	}

	base := "http://" + addr + "/api/v1/accounts/acct-1/tasks"
	resp, err := http.Post(base, "application/json", strings.NewReader(`{"parameters":{"kind":"ECHO","echo":{"message":"hi"}}}`))
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	var queued struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&queued)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || queued.ID == "" {
		t.Fatalf("unexpected queue response %d %+v", resp.StatusCode, queued)
	}

	resp, err = http.Post(base+"/execute", "application/json", strings.NewReader(`{"parameters":{"kind":"ECHO","echo":{"message":"hi"}}}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("execute without delegates should time out, got %d", resp.StatusCode)
	}
}
