package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
)

func TestTaskParametersDecodeOnlyMatchingPayload(t *testing.T) {
	raw := `{"kind":"SHELL_SCRIPT","shell":{"script":"echo hi","env":{"A":"1"}},"echo":{"message":"ignored"}}`
	var p TaskParameters
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Kind != consts.TASK_TYPE_SHELL || p.Shell == nil || p.Shell.Script != "echo hi" || p.Shell.Env["A"] != "1" {
		t.Fatalf("unexpected params %+v", p)
	}
	if p.Echo != nil {
		t.Fatalf("non-matching payload decoded")
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestTaskParametersRejectUnknownKind(t *testing.T) {
	var p TaskParameters
	err := json.Unmarshal([]byte(`{"kind":"K8S_SWAP","k8s":{}}`), &p)
	if err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestTaskParametersValidateRequiresSinglePayload(t *testing.T) {
	p := EchoParameters("x")
	p.HTTP = &HTTPParams{URL: "http://x"}
	if err := p.Validate(); err == nil {
		t.Fatalf("expected error for two payloads")
	}
}

func TestTaskParametersScanFromColumn(t *testing.T) {
	v, err := HTTPParameters(HTTPParams{Method: "GET", URL: "http://example.com"}).Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var p TaskParameters
	if err := p.Scan([]byte(v.(string))); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if p.HTTP == nil || p.HTTP.URL != "http://example.com" {
		t.Fatalf("scan lost payload: %+v", p)
	}
}

func TestResponseDataSucceeded(t *testing.T) {
	cases := map[string]struct {
		r    ResponseData
		want consts.TaskStatus
	}{
		"command ok":   {CommandResponse(CommandResult{Status: COMMAND_SUCCESS}), consts.TASK_SUCCESS},
		"command fail": {CommandResponse(CommandResult{Status: COMMAND_FAILURE, ExitCode: 2}), consts.TASK_FAILURE},
		"http 204":     {HTTPResponse(HTTPResult{StatusCode: 204}), consts.TASK_SUCCESS},
		"http 500":     {HTTPResponse(HTTPResult{StatusCode: 500}), consts.TASK_FAILURE},
		"error":        {ErrorResponse("boom"), consts.TASK_FAILURE},
		"echo":         {EchoResponse("hi"), consts.TASK_SUCCESS},
	}
	for name, c := range cases {
		if got := c.r.TerminalStatus(); got != c.want {
			t.Fatalf("%s: got %s want %s", name, got, c.want)
		}
	}
}

func TestResponseDataRequiresPayload(t *testing.T) {
	var r ResponseData
	if err := json.Unmarshal([]byte(`{"kind":"ERROR"}`), &r); err == nil {
		t.Fatalf("expected missing payload error")
	}
}

func TestBroadcastEventDecode(t *testing.T) {
	b, err := json.Marshal(NewAbortEvent("acc", "t1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var e BroadcastEvent
	if err := json.Unmarshal(b, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Kind != EVENT_ABORT || e.Abort == nil || e.Abort.DelegateTaskID != "t1" || e.Task != nil {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestTaskTypeSetDedupes(t *testing.T) {
	s := NewTaskTypeSet(consts.TASK_TYPE_HTTP, consts.TASK_TYPE_ECHO, consts.TASK_TYPE_HTTP)
	if len(s) != 2 || !s.Contains(consts.TASK_TYPE_ECHO) || s.Contains(consts.TASK_TYPE_SHELL) {
		t.Fatalf("unexpected set %v", s)
	}
}
