package model

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
)

type ResponseKind string

const (
	RESPONSE_COMMAND ResponseKind = "COMMAND_EXECUTION"
	RESPONSE_HTTP    ResponseKind = "HTTP_RESULT"
	RESPONSE_ERROR   ResponseKind = "ERROR"
	RESPONSE_ECHO    ResponseKind = "ECHO"
)

type CommandStatus string

const (
	COMMAND_SUCCESS CommandStatus = "SUCCESS"
	COMMAND_FAILURE CommandStatus = "FAILURE"
)

// ResponseData delegate 回传的结果，Kind 决定唯一有效的载荷
type ResponseData struct {
	Kind    ResponseKind
	Command *CommandResult
	HTTP    *HTTPResult
	Error   *ErrorResult
	Echo    *EchoResult
}

type CommandResult struct {
	Status   CommandStatus `json:"status"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output,omitempty"`
}

type HTTPResult struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
}

type ErrorResult struct {
	Message string `json:"message"`
}

type EchoResult struct {
	Message string `json:"message"`
}

func CommandResponse(r CommandResult) ResponseData {
	return ResponseData{Kind: RESPONSE_COMMAND, Command: &r}
}

func HTTPResponse(r HTTPResult) ResponseData {
	return ResponseData{Kind: RESPONSE_HTTP, HTTP: &r}
}

func ErrorResponse(format string, args ...any) ResponseData {
	return ResponseData{Kind: RESPONSE_ERROR, Error: &ErrorResult{Message: fmt.Sprintf(format, args...)}}
}

func EchoResponse(message string) ResponseData {
	return ResponseData{Kind: RESPONSE_ECHO, Echo: &EchoResult{Message: message}}
}

// Succeeded 推导任务终态
func (r ResponseData) Succeeded() bool {
	switch r.Kind {
	case RESPONSE_COMMAND:
		return r.Command != nil && r.Command.Status == COMMAND_SUCCESS
	case RESPONSE_HTTP:
		return r.HTTP != nil && r.HTTP.StatusCode >= 200 && r.HTTP.StatusCode < 400
	case RESPONSE_ECHO:
		return r.Echo != nil
	}
	return false
}

func (r ResponseData) TerminalStatus() consts.TaskStatus {
	if r.Succeeded() {
		return consts.TASK_SUCCESS
	}
	return consts.TASK_FAILURE
}

func (r ResponseData) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind    ResponseKind   `json:"kind"`
		Command *CommandResult `json:"command,omitempty"`
		HTTP    *HTTPResult    `json:"http,omitempty"`
		Error   *ErrorResult   `json:"error,omitempty"`
		Echo    *EchoResult    `json:"echo,omitempty"`
	}{Kind: r.Kind}
	switch r.Kind {
	case RESPONSE_COMMAND:
		out.Command = r.Command
	case RESPONSE_HTTP:
		out.HTTP = r.HTTP
	case RESPONSE_ERROR:
		out.Error = r.Error
	case RESPONSE_ECHO:
		out.Echo = r.Echo
	default:
		return nil, fmt.Errorf("unknown response kind %q", r.Kind)
	}
	return json.Marshal(out)
}

func (r *ResponseData) UnmarshalJSON(data []byte) error {
	*r = ResponseData{}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return fmt.Errorf("response data must be an object")
	}
	r.Kind = ResponseKind(root.Get("kind").String())
	var (
		field  string
		target any
	)
	switch r.Kind {
	case RESPONSE_COMMAND:
		r.Command, field = &CommandResult{}, "command"
		target = r.Command
	case RESPONSE_HTTP:
		r.HTTP, field = &HTTPResult{}, "http"
		target = r.HTTP
	case RESPONSE_ERROR:
		r.Error, field = &ErrorResult{}, "error"
		target = r.Error
	case RESPONSE_ECHO:
		r.Echo, field = &EchoResult{}, "echo"
		target = r.Echo
	default:
		return fmt.Errorf("unknown response kind %q", r.Kind)
	}
	payload := root.Get(field)
	if !payload.IsObject() {
		return fmt.Errorf("response kind %s missing %s payload", r.Kind, field)
	}
	return json.Unmarshal([]byte(payload.Raw), target)
}

// DelegateTaskRef 回传时携带的任务关联信息
type DelegateTaskRef struct {
	ID        string `json:"id"`
	WaitID    string `json:"wait_id,omitempty"`
	QueueName string `json:"queue_name,omitempty"`
}

type DelegateTaskResponse struct {
	AccountID string          `json:"account_id"`
	Task      DelegateTaskRef `json:"task"`
	Response  ResponseData    `json:"response"`
}
