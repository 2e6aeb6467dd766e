package agent

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/broadcast"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/cache"
	bizConfig "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/queue"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/rpc"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/service"
)

const acct = "acct-1"

type harness struct {
	dispatch    *service.DispatchService
	broadcaster *broadcast.MemoryBroadcaster
	taskDao     *dao.MemoryTaskDao
	runner      *Runner
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		broadcaster: broadcast.NewMemoryBroadcaster(),
		taskDao:     dao.NewMemoryTaskDao(),
	}
	delegateDao := dao.NewMemoryDelegateDao()

	h.dispatch = service.NewDispatchService(3 * time.Second)
	h.dispatch.TaskDao = h.taskDao
	h.dispatch.DelegateDao = delegateDao
	h.dispatch.Cache = cache.NewMemoryCache(time.Minute)
	h.dispatch.Queue = queue.NewMemoryQueue(time.Minute)
	h.dispatch.Broadcaster = h.broadcaster
	h.dispatch.Notify = service.NewNotifyEngine(1, time.Minute, "")

	delegates := service.NewDelegateService("", "")
	delegates.DelegateDao = delegateDao
	delegates.TaskDao = h.taskDao

	srv := rpc.NewAgentServer()
	srv.Delegates, srv.Dispatch = delegates, h.dispatch

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	rpc.RegisterDelegateAgentServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	h.runner = NewRunner(bizConfig.AgentConfig{
		AccountID:          acct,
		HostName:           "agent-1",
		IP:                 "10.0.0.9",
		Version:            "1.0.0",
		SupportedTaskTypes: []string{"ECHO", "SHELL_SCRIPT"},
		HeartbeatInterval:  50 * time.Millisecond,
		Concurrency:        2,
		ShellEnabled:       true,
	})
	h.runner.client = rpc.NewAgentClient(conn)
	if err := h.runner.Start(context.Background()); err != nil {
		t.Fatalf("start runner: %v", err)
	}
	t.Cleanup(func() { _ = h.runner.Stop(context.Background()) })

	waitFor(t, "subscription", func() bool { return h.broadcaster.Subscribers(acct) > 0 })
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunnerExecutesSyncTask(t *testing.T) {
	h := startHarness(t)
	data, err := h.dispatch.ExecuteTask(context.Background(), &model.DelegateTask{
		AccountID: acct, TaskType: consts.TASK_TYPE_ECHO, Parameters: model.EchoParameters("sync"),
	}, "test")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if data.Echo == nil || data.Echo.Message != "sync" {
		t.Fatalf("unexpected response %+v", data)
	}
}

func TestRunnerCompletesAsyncTask(t *testing.T) {
	h := startHarness(t)
	id, err := h.dispatch.QueueTask(context.Background(), &model.DelegateTask{
		AccountID: acct, TaskType: consts.TASK_TYPE_SHELL,
		Parameters: model.ShellParameters(model.ShellParams{Script: "echo async"}),
	})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	got := make(chan model.ResponseData, 1)
	h.dispatch.Notify.WaitFor(id, func(_ string, data model.ResponseData) { got <- data })

	select {
	case data := <-got:
		if data.Command == nil || data.Command.Status != model.COMMAND_SUCCESS {
			t.Fatalf("unexpected response %+v", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no notification for %s", id)
	}
}

func TestRunnerAbortsRunningTask(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()
	id, err := h.dispatch.QueueTask(ctx, &model.DelegateTask{
		AccountID: acct, TaskType: consts.TASK_TYPE_SHELL,
		Parameters: model.ShellParameters(model.ShellParams{Script: "sleep 30"}),
	})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	got := make(chan model.ResponseData, 1)
	h.dispatch.Notify.WaitFor(id, func(_ string, data model.ResponseData) { got <- data })

	waitFor(t, "task start", func() bool {
		task, err := h.taskDao.Get(ctx, acct, id)
		return err == nil && task.Status == consts.TASK_STARTED
	})
	waitFor(t, "task tracked", func() bool { return len(h.runner.executing()) == 1 })
	if err := h.dispatch.AbortTask(ctx, acct, id); err != nil {
		t.Fatalf("abort: %v", err)
	}

	select {
	case data := <-got:
		if data.Kind != model.RESPONSE_ERROR {
			t.Fatalf("expected error response for aborted task, got %s", data.Kind)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("aborted task never reported")
	}
}
