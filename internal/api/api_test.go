package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/broadcast"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/cache"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/queue"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/service"
)

const acct = "acct-1"

func newTestRouter(t *testing.T, syncTimeout time.Duration) http.Handler {
	t.Helper()
	taskDao := dao.NewMemoryTaskDao()
	delegateDao := dao.NewMemoryDelegateDao()

	notify := service.NewNotifyEngine(1, time.Minute, "")
	dispatch := service.NewDispatchService(syncTimeout)
	dispatch.TaskDao = taskDao
	dispatch.DelegateDao = delegateDao
	dispatch.Cache = cache.NewMemoryCache(time.Minute)
	dispatch.Queue = queue.NewMemoryQueue(time.Minute)
	dispatch.Broadcaster = broadcast.NewMemoryBroadcaster()
	dispatch.Notify = notify

	delegates := service.NewDelegateService("", "")
	delegates.DelegateDao = delegateDao
	delegates.TaskDao = taskDao

	tc := NewTaskController()
	tc.Dispatch, tc.Notify = dispatch, notify
	dc := NewDelegateController()
	dc.Delegates, dc.Dispatch = delegates, dispatch

	r := chi.NewRouter()
	Mount(r, tc, dc)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func echoRequest() map[string]any {
	return map[string]any{"parameters": model.EchoParameters("ping")}
}

func registerDelegate(t *testing.T, h http.Handler, host string) *model.Delegate {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/accounts/"+acct+"/delegates/register", map[string]any{
		"ip": "10.0.0.1", "host_name": host, "supported_task_types": []string{"ECHO"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register %s: %d %s", host, rec.Code, rec.Body.String())
	}
	return decode[*model.Delegate](t, rec)
}

func TestQueueGetAndAbort(t *testing.T) {
	h := newTestRouter(t, time.Second)
	base := "/api/v1/accounts/" + acct + "/tasks"

	rec := do(t, h, http.MethodPost, base, echoRequest())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("queue: %d %s", rec.Code, rec.Body.String())
	}
	id := decode[map[string]string](t, rec)["id"]
	if id == "" {
		t.Fatalf("missing id")
	}

	got := decode[*model.DelegateTask](t, do(t, h, http.MethodGet, base+"/"+id, nil))
	if got.Status != consts.TASK_QUEUED || got.TaskType != consts.TASK_TYPE_ECHO || got.WaitID != id {
		t.Fatalf("unexpected task %+v", got)
	}

	if rec := do(t, h, http.MethodPost, base+"/"+id+"/abort", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("abort: %d", rec.Code)
	}
	got = decode[*model.DelegateTask](t, do(t, h, http.MethodGet, base+"/"+id, nil))
	if got.Status != consts.TASK_ABORTED || got.DelegateID != "" {
		t.Fatalf("task not aborted: %+v", got)
	}

	list := decode[listBody[*model.DelegateTask]](t, do(t, h, http.MethodGet, base+"?status=aborted", nil))
	if list.Total != 1 || len(list.Items) != 1 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newTestRouter(t, time.Second)
	base := "/api/v1/accounts/" + acct + "/tasks"

	rec := do(t, h, http.MethodGet, base+"/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body := decode[errorBody](t, rec); body.Code != string(service.ERR_TASK_NOT_FOUND) {
		t.Fatalf("unexpected code %q", body.Code)
	}

	rec = do(t, h, http.MethodPost, base, map[string]any{"parameters": map[string]any{"kind": "NOPE"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rec.Code)
	}
}

func TestExecuteTimeoutNamesCaller(t *testing.T) {
	h := newTestRouter(t, 50*time.Millisecond)
	rec := do(t, h, http.MethodPost, "/api/v1/accounts/"+acct+"/tasks/execute", echoRequest(),
		consts.HEADER_CALLER_NAME, "pipeline-7")
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d %s", rec.Code, rec.Body.String())
	}
	body := decode[errorBody](t, rec)
	if body.Code != string(service.ERR_REQUEST_TIMEOUT) || body.Params["name"] != "pipeline-7" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRegisterIsIdempotentPerHost(t *testing.T) {
	h := newTestRouter(t, time.Second)
	first := registerDelegate(t, h, "host-a")
	second := registerDelegate(t, h, "host-a")
	if first.ID != second.ID {
		t.Fatalf("expected same id, got %s and %s", first.ID, second.ID)
	}
	list := decode[listBody[*model.Delegate]](t, do(t, h, http.MethodGet, "/api/v1/accounts/"+acct+"/delegates", nil))
	if list.Total != 1 {
		t.Fatalf("expected one delegate, got %d", list.Total)
	}

	rec := do(t, h, http.MethodPost, "/api/v1/accounts/"+acct+"/delegates/"+first.ID+"/heartbeat", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("heartbeat: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/accounts/"+acct+"/delegates/unknown/heartbeat", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown delegate, got %d", rec.Code)
	}
}

func TestAcquireStartRespondNotify(t *testing.T) {
	h := newTestRouter(t, time.Second)
	winner := registerDelegate(t, h, "host-a")
	loser := registerDelegate(t, h, "host-b")

	rec := do(t, h, http.MethodPost, "/api/v1/accounts/"+acct+"/tasks", echoRequest())
	id := decode[map[string]string](t, rec)["id"]
	taskPath := func(d *model.Delegate, op string) string {
		return "/api/v1/accounts/" + acct + "/delegates/" + d.ID + "/tasks/" + id + "/" + op
	}

	rec = do(t, h, http.MethodPost, taskPath(winner, "acquire"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("acquire: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[*model.DelegateTask](t, rec); got.DelegateID != winner.ID {
		t.Fatalf("claimed by %q", got.DelegateID)
	}
	if rec := do(t, h, http.MethodPost, taskPath(loser, "acquire"), nil); rec.Code != http.StatusNoContent {
		t.Fatalf("second acquire should lose, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, taskPath(loser, "start"), nil); rec.Code != http.StatusNoContent {
		t.Fatalf("non-claimant start should lose, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, taskPath(winner, "start"), nil)
	if got := decode[*model.DelegateTask](t, rec); got.Status != consts.TASK_STARTED {
		t.Fatalf("expected STARTED, got %s", got.Status)
	}

	rec = do(t, h, http.MethodPost, taskPath(winner, "response"), map[string]any{
		"task":     model.DelegateTaskRef{WaitID: id},
		"response": model.EchoResponse("pong"),
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("response: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/v1/accounts/"+acct+"/notifications/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("notification: %d", rec.Code)
	}
	note := decode[struct {
		Response model.ResponseData `json:"response"`
	}](t, rec)
	if note.Response.Echo == nil || note.Response.Echo.Message != "pong" {
		t.Fatalf("unexpected notification %+v", note.Response)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/accounts/"+acct+"/tasks/"+id, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("task should be deleted after notify, got %d", rec.Code)
	}
}

func TestStreamDeliversNewTask(t *testing.T) {
	h := newTestRouter(t, time.Second)
	d := registerDelegate(t, h, "host-a")
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/accounts/"+acct+"/delegates/"+d.ID+"/stream", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	rec := do(t, h, http.MethodPost, "/api/v1/accounts/"+acct+"/tasks", echoRequest())
	id := decode[map[string]string](t, rec)["id"]

	sc := bufio.NewScanner(resp.Body)
	var kind string
	for sc.Scan() {
		line := sc.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			kind = v
			continue
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok {
			var ev model.BroadcastEvent
			if err := json.Unmarshal([]byte(v), &ev); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if kind != string(model.EVENT_NEW_TASK) || ev.Task == nil || ev.Task.ID != id {
				t.Fatalf("unexpected event %s %+v", kind, ev)
			}
			return
		}
	}
	t.Fatalf("stream ended without event: %v", sc.Err())
}
