package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/broadcast"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/cache"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/queue"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/service"
)

const acct = "acct-1"

func startAgentServer(t *testing.T) (*AgentClient, *service.DispatchService) {
	t.Helper()
	taskDao := dao.NewMemoryTaskDao()
	delegateDao := dao.NewMemoryDelegateDao()

	dispatch := service.NewDispatchService(time.Second)
	dispatch.TaskDao = taskDao
	dispatch.DelegateDao = delegateDao
	dispatch.Cache = cache.NewMemoryCache(time.Minute)
	dispatch.Queue = queue.NewMemoryQueue(time.Minute)
	dispatch.Broadcaster = broadcast.NewMemoryBroadcaster()
	dispatch.Notify = service.NewNotifyEngine(1, time.Minute, "")

	delegates := service.NewDelegateService("", "")
	delegates.DelegateDao = delegateDao
	delegates.TaskDao = taskDao

	srv := NewAgentServer()
	srv.Delegates, srv.Dispatch = delegates, dispatch

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterDelegateAgentServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewAgentClient(conn), dispatch
}

func register(t *testing.T, c *AgentClient, host string) *model.Delegate {
	t.Helper()
	d, err := c.Register(context.Background(), &model.Delegate{
		AccountID: acct, IP: "10.0.0.2", HostName: host,
		SupportedTaskTypes: model.NewTaskTypeSet(consts.TASK_TYPE_ECHO),
	})
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	return d
}

func TestAcquireOverRPC(t *testing.T) {
	c, dispatch := startAgentServer(t)
	ctx := context.Background()
	a := register(t, c, "host-a")
	b := register(t, c, "host-b")

	id, err := dispatch.QueueTask(ctx, &model.DelegateTask{
		AccountID: acct, TaskType: consts.TASK_TYPE_ECHO, Parameters: model.EchoParameters("hi"),
	})
	require.NoError(t, err)

	won, err := c.Acquire(ctx, &TaskRequest{AccountID: acct, DelegateID: a.ID, TaskID: id})
	require.NoError(t, err)
	require.NotNil(t, won)
	assert.Equal(t, a.ID, won.DelegateID)

	lost, err := c.Acquire(ctx, &TaskRequest{AccountID: acct, DelegateID: b.ID, TaskID: id})
	require.NoError(t, err)
	assert.Nil(t, lost)

	started, err := c.Start(ctx, &TaskRequest{AccountID: acct, DelegateID: a.ID, TaskID: id})
	require.NoError(t, err)
	assert.Equal(t, consts.TASK_STARTED, started.Status)

	err = c.SendResponse(ctx, &model.DelegateTaskResponse{
		AccountID: acct,
		Task:      model.DelegateTaskRef{ID: id, WaitID: id},
		Response:  model.EchoResponse("hi"),
	})
	require.NoError(t, err)
	data, ok := dispatch.Notify.Result(id)
	require.True(t, ok)
	assert.Equal(t, "hi", data.Echo.Message)
}

func TestHeartbeatUnknownDelegateIsNotFound(t *testing.T) {
	c, _ := startAgentServer(t)
	_, err := c.Heartbeat(context.Background(), &HeartbeatRequest{AccountID: acct, DelegateID: "ghost"})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestRegisterWithoutDelegateIsInvalid(t *testing.T) {
	c, _ := startAgentServer(t)
	_, err := c.Register(context.Background(), nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSubscribeStreamsFilteredEvents(t *testing.T) {
	c, dispatch := startAgentServer(t)
	d := register(t, c, "host-a")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := c.Subscribe(ctx, &SubscribeRequest{AccountID: acct, DelegateID: d.ID})
	require.NoError(t, err)

	// 订阅在服务端异步建立，持续派发直到收到事件
	go func() {
		for ctx.Err() == nil {
			_, _ = dispatch.QueueTask(context.Background(), &model.DelegateTask{
				AccountID: acct, TaskType: consts.TASK_TYPE_SHELL,
				Parameters: model.ShellParameters(model.ShellParams{Script: "true"}),
			})
			_, _ = dispatch.QueueTask(context.Background(), &model.DelegateTask{
				AccountID: acct, TaskType: consts.TASK_TYPE_ECHO, Parameters: model.EchoParameters("x"),
			})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	ev, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, model.EVENT_NEW_TASK, ev.Kind)
	assert.Equal(t, consts.TASK_TYPE_ECHO, ev.Task.TaskType, "shell tasks are filtered for an echo-only delegate")
}
