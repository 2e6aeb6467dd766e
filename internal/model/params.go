package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
)

// TaskParameters 任务参数，Kind 决定唯一有效的载荷字段。
// 线上格式：{"kind":"SHELL_SCRIPT","shell":{...}}
type TaskParameters struct {
	Kind  consts.TaskType
	Echo  *EchoParams
	Shell *ShellParams
	HTTP  *HTTPParams
}

type EchoParams struct {
	Message string `json:"message"`
}

type ShellParams struct {
	Script  string            `json:"script"`
	WorkDir string            `json:"work_dir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

type HTTPParams struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

func EchoParameters(message string) TaskParameters {
	return TaskParameters{Kind: consts.TASK_TYPE_ECHO, Echo: &EchoParams{Message: message}}
}

func ShellParameters(p ShellParams) TaskParameters {
	return TaskParameters{Kind: consts.TASK_TYPE_SHELL, Shell: &p}
}

func HTTPParameters(p HTTPParams) TaskParameters {
	return TaskParameters{Kind: consts.TASK_TYPE_HTTP, HTTP: &p}
}

// Validate 要求 Kind 已知且只有对应载荷非空
func (p TaskParameters) Validate() error {
	set := 0
	for _, present := range []bool{p.Echo != nil, p.Shell != nil, p.HTTP != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("task parameters must carry exactly one payload, got %d", set)
	}
	switch p.Kind {
	case consts.TASK_TYPE_ECHO:
		if p.Echo == nil {
			return fmt.Errorf("kind %s requires echo payload", p.Kind)
		}
	case consts.TASK_TYPE_SHELL:
		if p.Shell == nil || p.Shell.Script == "" {
			return fmt.Errorf("kind %s requires shell.script", p.Kind)
		}
	case consts.TASK_TYPE_HTTP:
		if p.HTTP == nil || p.HTTP.URL == "" {
			return fmt.Errorf("kind %s requires http.url", p.Kind)
		}
	default:
		return fmt.Errorf("unknown task parameters kind %q", p.Kind)
	}
	return nil
}

func (p TaskParameters) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind  consts.TaskType `json:"kind"`
		Echo  *EchoParams     `json:"echo,omitempty"`
		Shell *ShellParams    `json:"shell,omitempty"`
		HTTP  *HTTPParams     `json:"http,omitempty"`
	}{Kind: p.Kind}
	switch p.Kind {
	case consts.TASK_TYPE_ECHO:
		out.Echo = p.Echo
	case consts.TASK_TYPE_SHELL:
		out.Shell = p.Shell
	case consts.TASK_TYPE_HTTP:
		out.HTTP = p.HTTP
	case "":
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unknown task parameters kind %q", p.Kind)
	}
	return json.Marshal(out)
}

// UnmarshalJSON 先读取 kind，再只解码对应的载荷，其余字段忽略
func (p *TaskParameters) UnmarshalJSON(data []byte) error {
	*p = TaskParameters{}
	root := gjson.ParseBytes(data)
	if root.Type == gjson.Null {
		return nil
	}
	if !root.IsObject() {
		return fmt.Errorf("task parameters must be an object")
	}
	kind := consts.TaskType(root.Get("kind").String())
	switch kind {
	case consts.TASK_TYPE_ECHO:
		p.Echo = &EchoParams{}
		return p.decode(kind, root.Get("echo"), p.Echo)
	case consts.TASK_TYPE_SHELL:
		p.Shell = &ShellParams{}
		return p.decode(kind, root.Get("shell"), p.Shell)
	case consts.TASK_TYPE_HTTP:
		p.HTTP = &HTTPParams{}
		return p.decode(kind, root.Get("http"), p.HTTP)
	}
	return fmt.Errorf("unknown task parameters kind %q", kind)
}

func (p *TaskParameters) decode(kind consts.TaskType, payload gjson.Result, target any) error {
	p.Kind = kind
	if !payload.Exists() || !payload.IsObject() {
		return fmt.Errorf("task parameters kind %s missing payload", kind)
	}
	if err := json.Unmarshal([]byte(payload.Raw), target); err != nil {
		return fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return nil
}

// Value 以 JSON 文本落库
func (p TaskParameters) Value() (driver.Value, error) {
	if p.Kind == "" {
		return nil, nil
	}
	b, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *TaskParameters) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = TaskParameters{}
		return nil
	case []byte:
		return p.UnmarshalJSON(v)
	case string:
		return p.UnmarshalJSON([]byte(v))
	}
	return fmt.Errorf("unsupported parameters column type %T", src)
}
