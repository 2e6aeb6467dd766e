package agent

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/http_client"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// maxOutput shell 输出回传上限
const maxOutput = 64 << 10

const waitDelay = 2 * time.Second

// Executor 在本地执行一种任务并给出回传结果，失败也以 ERROR 响应表达
type Executor interface {
	Execute(ctx context.Context, task *model.DelegateTask) model.ResponseData
}

type ExecutorFunc func(ctx context.Context, task *model.DelegateTask) model.ResponseData

func (f ExecutorFunc) Execute(ctx context.Context, task *model.DelegateTask) model.ResponseData {
	return f(ctx, task)
}

// HTTPDoer http_client.InstrumentedClient 的调用面
type HTTPDoer interface {
	Do(ctx context.Context, method, path string, query, headers map[string]string, body, out any) (*http.Response, error)
}

func echoExecutor(_ context.Context, task *model.DelegateTask) model.ResponseData {
	return model.EchoResponse(task.Parameters.Echo.Message)
}

func shellExecutor(ctx context.Context, task *model.DelegateTask) model.ResponseData {
	p := task.Parameters.Shell
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", p.Script)
	cmd.Dir = p.WorkDir
	// 子进程可能继承输出管道，取消后最多再等 waitDelay
	cmd.WaitDelay = waitDelay
	if len(p.Env) > 0 {
		keys := make([]string, 0, len(p.Env))
		for k := range p.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		cmd.Env = os.Environ()
		for _, k := range keys {
			cmd.Env = append(cmd.Env, k+"="+p.Env[k])
		}
	}
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return model.ErrorResponse("shell task interrupted: %v", ctx.Err())
	}
	if len(out) > maxOutput {
		out = out[len(out)-maxOutput:]
	}
	result := model.CommandResult{Status: model.COMMAND_SUCCESS, Output: string(out)}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return model.ErrorResponse("run shell task: %v", err)
		}
		result.Status, result.ExitCode = model.COMMAND_FAILURE, exitErr.ExitCode()
	}
	return model.CommandResponse(result)
}

func disabledExecutor(_ context.Context, task *model.DelegateTask) model.ResponseData {
	return model.ErrorResponse("task type %s is disabled on this delegate", task.TaskType)
}

func httpExecutor(doer HTTPDoer) ExecutorFunc {
	return func(ctx context.Context, task *model.DelegateTask) model.ResponseData {
		if doer == nil {
			return model.ErrorResponse("no http client configured")
		}
		p := task.Parameters.HTTP
		var body any
		if p.Body != "" {
			body = p.Body
		}
		var out string
		resp, err := doer.Do(ctx, p.Method, p.URL, nil, p.Headers, body, &out)
		var statusErr *http_client.StatusError
		switch {
		case errors.As(err, &statusErr):
			return model.HTTPResponse(model.HTTPResult{StatusCode: statusErr.StatusCode, Body: statusErr.Body})
		case err != nil:
			return model.ErrorResponse("http task %s %s: %v", p.Method, p.URL, err)
		}
		return model.HTTPResponse(model.HTTPResult{StatusCode: resp.StatusCode, Body: out})
	}
}

// newExecutors 按参数 kind 选择执行器
func newExecutors(shellEnabled bool, doer HTTPDoer) map[consts.TaskType]Executor {
	shell := ExecutorFunc(disabledExecutor)
	if shellEnabled {
		shell = shellExecutor
	}
	return map[consts.TaskType]Executor{
		consts.TASK_TYPE_ECHO:  ExecutorFunc(echoExecutor),
		consts.TASK_TYPE_SHELL: shell,
		consts.TASK_TYPE_HTTP:  httpExecutor(doer),
	}
}

func execute(ctx context.Context, executors map[consts.TaskType]Executor, task *model.DelegateTask) model.ResponseData {
	if err := task.Parameters.Validate(); err != nil {
		return model.ErrorResponse("invalid task parameters: %v", err)
	}
	ex, ok := executors[task.Parameters.Kind]
	if !ok {
		return model.ErrorResponse("unsupported task type %s", task.Parameters.Kind)
	}
	return ex.Execute(ctx, task)
}
